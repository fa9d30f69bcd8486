// Package bypass recognizes bot-protection challenge pages so that the
// scraper can treat them as failed fetches instead of page content.
package bypass

import (
	"bytes"
	"net/http"
	"slices"
	"strings"
)

// Wall describes how one bot-protection vendor presents a block page.
type Wall struct {
	Vendor string
	// Statuses the vendor answers a challenge with.
	Statuses []int
	// ServerHints are substrings of the lower-cased Server header.
	ServerHints []string
	// Headers whose mere presence identifies the vendor.
	Headers []string
	// Markers are alternative body signatures; every string within one
	// group must appear.
	Markers [][]string
}

// Walls is the default rule set, checked in order.
var Walls = []Wall{
	{
		Vendor:      "Cloudflare",
		Statuses:    []int{http.StatusForbidden, http.StatusServiceUnavailable},
		ServerHints: []string{"cloudflare"},
		Markers: [][]string{
			{"cf-browser-verification"},
			{"cloudflare-nginx"},
			{"cf-turnstile"},
			{"Attention Required! | Cloudflare"},
		},
	},
	{
		Vendor:      "Akamai",
		Statuses:    []int{http.StatusForbidden},
		ServerHints: []string{"akamai"},
		Markers:     [][]string{{"Reference #", "Access Denied"}},
	},
	{
		Vendor:      "DataDome",
		Statuses:    []int{http.StatusForbidden},
		ServerHints: []string{"datadome"},
		Headers:     []string{"X-DataDome", "X-DataDome-Response"},
		Markers:     [][]string{{"geo.captcha-delivery.com"}, {"datadome"}},
	},
	{
		Vendor:   "PerimeterX",
		Statuses: []int{http.StatusForbidden},
		Headers:  []string{"X-Px-Captcha"},
		Markers:  [][]string{{"client.perimeterx.net"}, {"px-captcha"}, {"_pxBlock"}},
	},
}

// Detect reports the vendor whose block page the response matches, using
// the default Walls.
func Detect(status int, header http.Header, body []byte) (string, bool) {
	return DetectWith(Walls, status, header, body)
}

// DetectWith is Detect over a caller-supplied rule set.
func DetectWith(walls []Wall, status int, header http.Header, body []byte) (string, bool) {
	for _, w := range walls {
		if w.matches(status, header, body) {
			return w.Vendor, true
		}
	}
	return "", false
}

func (w Wall) matches(status int, header http.Header, body []byte) bool {
	if !slices.Contains(w.Statuses, status) {
		return false
	}

	server := strings.ToLower(header.Get("Server"))
	for _, hint := range w.ServerHints {
		if server != "" && strings.Contains(server, hint) {
			return true
		}
	}
	for _, h := range w.Headers {
		if header.Get(h) != "" {
			return true
		}
	}
	for _, group := range w.Markers {
		if containsAll(body, group) {
			return true
		}
	}
	return false
}

func containsAll(body []byte, markers []string) bool {
	for _, m := range markers {
		if !bytes.Contains(body, []byte(m)) {
			return false
		}
	}
	return len(markers) > 0
}
