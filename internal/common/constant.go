// Package common contains shared constants and sentinel errors used across
// comicsync components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// ServiceName is the fully qualified gRPC service name of the library API.
const ServiceName = "comicsync.v1.Library"
