package client

import (
	"errors"

	"github.com/dmitrijs2005/comicsync/internal/common"
)

var (
	// ErrUnavailable is a network-class failure; the push queue retries it.
	ErrUnavailable           = common.ErrUnavailable
	ErrUnauthorized          = common.ErrUnauthorized
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
)
