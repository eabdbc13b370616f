package gateway

import (
	"context"
	"fmt"
	"maps"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
)

// Call is a parsed tag call, with the event name already translated.
type Call struct {
	Command    string
	SourceName string
	EventName  string
	Params     map[string]any
	EventID    string
}

// Mirror delivers a parsed call to the destination channel.
type Mirror interface {
	Mirror(ctx context.Context, call Call) bool
}

// MirrorFunc adapts a function to Mirror.
type MirrorFunc func(ctx context.Context, call Call) bool

// Mirror implements Mirror.
func (fn MirrorFunc) Mirror(ctx context.Context, call Call) bool {
	if fn == nil {
		return false
	}

	return fn(ctx, call)
}

type parseOutcome int

const (
	outcomeMirror parseOutcome = iota
	outcomeIgnored
	outcomeSelfOriginated
)

// parseCall reads fn(command, eventName, params?, options?).
func parseCall(args []any) (Call, parseOutcome, error) {
	if len(args) < 2 {
		return Call{}, outcomeIgnored, fmt.Errorf("%w: expected at least 2 arguments, got %d", ErrMalformedCall, len(args))
	}

	command, ok := args[0].(string)
	if !ok {
		return Call{}, outcomeIgnored, fmt.Errorf("%w: command is %T", ErrMalformedCall, args[0])
	}

	if command != channel.CommandTrack && command != channel.CommandTrackCustom {
		return Call{}, outcomeIgnored, nil
	}

	name, ok := args[1].(string)
	if !ok || name == "" {
		return Call{}, outcomeIgnored, fmt.Errorf("%w: event name is %T", ErrMalformedCall, args[1])
	}

	call := Call{Command: command, SourceName: name, EventName: name, Params: map[string]any{}}

	if len(args) > 2 && args[2] != nil {
		params, ok := args[2].(map[string]any)
		if !ok {
			return Call{}, outcomeIgnored, fmt.Errorf("%w: params are %T", ErrMalformedCall, args[2])
		}

		call.Params = maps.Clone(params)
	}

	if len(args) > 3 && args[3] != nil {
		opts, err := callOptions(args[3])
		if err != nil {
			return Call{}, outcomeIgnored, err
		}

		if opts.Origin == channel.OriginTracker {
			return Call{}, outcomeSelfOriginated, nil
		}

		call.EventID = opts.EventID
	}

	return call, outcomeMirror, nil
}

func callOptions(arg any) (channel.CallOptions, error) {
	switch opts := arg.(type) {
	case channel.CallOptions:
		return opts, nil
	case *channel.CallOptions:
		if opts == nil {
			return channel.CallOptions{}, nil
		}

		return *opts, nil
	case map[string]any:
		eventID, _ := opts["eventID"].(string)

		return channel.CallOptions{EventID: eventID}, nil
	default:
		return channel.CallOptions{}, fmt.Errorf("%w: options are %T", ErrMalformedCall, arg)
	}
}
