// Package rate throttles password sign-in attempts per email with Redis
// fixed-window counters.
//
// A failed attempt runs INCR on <prefix>:signin:<email> and sets EXPIRE on the
// first hit of the window. A successful sign-in deletes the key.
package rate
