// Package linkscan finds hyperlinks in free text.
package linkscan

import (
	"mvdan.cc/xurls/v2"
)

// strict only accepts URLs that carry a scheme, so bare words such as
// "example.com" or "v1.2" are never reported.
var strict = xurls.Strict()

// Scan returns every link in text, in order of appearance.  Duplicates
// are kept.  Text without links yields nil.
func Scan(text string) []string {
	return strict.FindAllString(text, -1)
}
