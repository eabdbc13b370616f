// Package tracking delivers one business event to four independent channels:
// the on-page tag, the server-side conversion endpoint, the analytics tag and
// the server-side measurement endpoint.
//
// A Tracker composes the building blocks found in the subpackages:
//
//   - identity: per-namespace dedup records with per-event expiration windows
//   - channel: the registry of tag entry points and the four senders
//   - retry: bounded exponential backoff for the endpoint senders
//   - pending: an in-memory queue for tags that are not loaded yet
//   - gateway: mirrors calls made to the tag into the analytics side
//   - dispatch: dedup check, parallel fan-out and mark-as-sent
//
// Typical usage:
//
//	tracker, err := tracking.New(tracking.DefaultConfig(), tracking.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer tracker.Close(ctx)
//
//	tracker.Start(ctx)
//	tracker.SendEvent(ctx, "Contact", map[string]any{"method": "WhatsApp"}, phone, dispatch.Options{})
//
// Public entry points never return delivery errors: they report acceptance as
// a bool and surface failures through the logger and OTel metrics.
package tracking
