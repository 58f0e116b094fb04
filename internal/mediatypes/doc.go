// Package mediatypes classifies picture locators by format.
//
// A locator is either a filesystem path or an http(s) URL. The package has
// no dependencies beyond the standard library so that imagesource,
// thumbstore and server can all import it:
//
//	if !mediatypes.IsPicture(path) {
//	    return nil
//	}
//	w.Header().Set("Content-Type", mediatypes.FormatJPEG.MimeType())
package mediatypes
