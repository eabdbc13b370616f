// Package gateway mirrors calls made to one tag's global dispatch function
// into a second channel.
//
// Install polls the channel registry until the source tag is loaded, then
// wraps its dispatch function. The wrapper calls the original unchanged and
// returns its result; trackable calls are then mirrored in the background
// through a Mirror, so the caller of the tag is never blocked by the second
// channel. Calls issued by the tracker itself carry OriginTracker and are not
// mirrored.
package gateway
