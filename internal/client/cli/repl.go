package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL dispatches to.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Apply(ctx context.Context, args []string) error
	Dismiss(ctx context.Context, args []string) error
	Get(ctx context.Context, args []string) error
	Pull(ctx context.Context, args []string) error
	Add(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	Persist(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Download(ctx context.Context, args []string) error
	Downloads(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
	Reset(ctx context.Context, args []string) error
}

const (
	helpLoggedOut = "Available commands: register, login, exit"
	helpLoggedIn  = "Available commands: (l)ist, show, apply, dismiss, get, pull, add, edit, persist, delete, download, downloads, status, reset, logout, exit"
)

// runREPL reads commands from scanner until EOF, "exit" or "quit".
//
// The first token of a line is the command, the rest are its arguments.
// Commands other than help, register, login and exit need a logged-in user.
// Errors returned by commands are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("cs %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}
			continue
		case "register":
			err = a.Register(ctx)
		case "login":
			err = a.Login(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			if !a.isLoggedIn() {
				printlnFn("Please login first")
				continue
			}
			err = dispatch(ctx, a, cmd, args)
		}
		if err != nil {
			printlnFn("error:", err)
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) error {
	switch cmd {
	case "l", "list":
		return a.List(ctx, args)
	case "show":
		return a.Show(ctx, args)
	case "apply":
		return a.Apply(ctx, args)
	case "dismiss":
		return a.Dismiss(ctx, args)
	case "get":
		return a.Get(ctx, args)
	case "pull":
		return a.Pull(ctx, args)
	case "add":
		return a.Add(ctx, args)
	case "edit":
		return a.Edit(ctx, args)
	case "persist":
		return a.Persist(ctx, args)
	case "delete":
		return a.Delete(ctx, args)
	case "download":
		return a.Download(ctx, args)
	case "downloads":
		return a.Downloads(ctx, args)
	case "status":
		return a.Status(ctx, args)
	case "reset":
		return a.Reset(ctx, args)
	case "logout":
		return a.Logout(ctx)
	default:
		printlnFn("Unknown command:", cmd)
		return nil
	}
}
