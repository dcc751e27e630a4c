// Package audio holds the frame/format types shared by every layer of the
// mixing engine and the saturating arithmetic used to sum and scale them.
package audio
