package udrone

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// DroneNotFoundError is raised when fewer than min drones are available for
// assign, or a call is attempted on an empty group.
type DroneNotFoundError struct {
	Reason string
}

func (e *DroneNotFoundError) Error() string {
	return e.Reason
}

// DroneNotReachableError is raised when one or more expected drones did not
// reply within the overall timeout.
type DroneNotReachableError struct {
	Drones []string
}

func (e *DroneNotReachableError) Error() string {
	return fmt.Sprintf("request timeout: %s", strings.Join(e.Drones, ", "))
}

// DroneRuntimeError is raised when a reply was received but indicated
// failure, an unsupported command, or a malformed envelope.
type DroneRuntimeError struct {
	Code    int
	Message string
	Drone   string
}

func (e *DroneRuntimeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("drone %s: code %d: %s", e.Drone, e.Code, e.Message)
	}
	return fmt.Sprintf("drone %s: code %d", e.Drone, e.Code)
}

// DroneConflictError is raised when a reply arrives from a drone that is not
// a member of the group it answered for.
type DroneConflictError struct {
	Drones []string
}

func (e *DroneConflictError) Error() string {
	return fmt.Sprintf("unexpected reply from: %s", strings.Join(e.Drones, ", "))
}

func errDroneNotFound(reason string) error {
	return errors.WithStack(&DroneNotFoundError{Reason: reason})
}

func errDroneNotReachable(drones []string) error {
	return errors.WithStack(&DroneNotReachableError{Drones: drones})
}

func errDroneRuntime(code int, message, drone string) error {
	return errors.WithStack(&DroneRuntimeError{Code: code, Message: message, Drone: drone})
}

func errDroneConflict(drones []string) error {
	return errors.WithStack(&DroneConflictError{Drones: drones})
}

// Numeric codes mirroring the errno-style codes the wire protocol borrows
// from the drone-side C runtime.
const (
	codeUnsupported = 95  // EOPNOTSUPP
	codeProtocol    = 71  // EPROTO
)
