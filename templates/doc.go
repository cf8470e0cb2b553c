// Package templates renders the admin and customer payment emails as HTML
// and plain text from embedded templates.
package templates
