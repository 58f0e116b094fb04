// Package imagesource turns a picture locator into decoded pixels.
//
// A locator is a local path, a file:// URL or an http(s) URL. [DefaultOpener]
// reads it, retrying stale NFS handles and transient HTTP failures, and
// [ImageDecoder] decodes the bytes with EXIF auto-orientation, shrinking
// pictures larger than its [Constraints].
//
// [Source] wraps one locator with an asynchronous load and a listener
// contract. Subscribers receive Loading, then Ready or Error, plus
// progress notifications, and unsubscribe by cancelling their
// [Subscription]:
//
//	src := imagesource.New(path, decoder, imagesource.WithLimiter(sem))
//	sub := src.Subscribe(imagesource.StatusFunc(func(s imagesource.Status) {
//	    if s.Code == imagesource.StatusReady {
//	        use(s.Source.Image())
//	    }
//	}))
//	defer sub.Cancel()
//	src.Load(ctx, imagesource.PriorityLow, 0)
//
// Failures are reported as [*LocatorError] when the picture cannot be opened
// and [*DecodeError] when its bytes are not a picture.
package imagesource
