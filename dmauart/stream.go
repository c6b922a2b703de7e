package dmauart

// AsyncReadStream is implemented by transports that can satisfy partial
// reads asynchronously.
type AsyncReadStream interface {
	AsyncReadSome(p []byte, cb Callback)
}

// AsyncWriteStream is implemented by transports that can accept partial
// writes asynchronously.
type AsyncWriteStream interface {
	AsyncWriteSome(p []byte, cb Callback)
}

// AsyncStream combines both directions of an asynchronous transport.
type AsyncStream interface {
	AsyncReadStream
	AsyncWriteStream
}

// ErrorCallback reports only the final status of a composed operation.
type ErrorCallback func(err Error)

// ReadFull keeps issuing reads until p is completely filled, then invokes
// cb once. The first transfer error aborts the chain and is passed through.
func ReadFull(s AsyncReadStream, p []byte, cb ErrorCallback) {
	if len(p) == 0 {
		cb(ErrNone)
		return
	}
	s.AsyncReadSome(p, func(err Error, n int) {
		if err != ErrNone {
			cb(err)
			return
		}
		if n == len(p) {
			cb(ErrNone)
			return
		}
		ReadFull(s, p[n:], cb)
	})
}

// WriteFull keeps issuing writes until all of p has been accepted, then
// invokes cb once. The first transfer error aborts the chain and is passed
// through.
func WriteFull(s AsyncWriteStream, p []byte, cb ErrorCallback) {
	if len(p) == 0 {
		cb(ErrNone)
		return
	}
	s.AsyncWriteSome(p, func(err Error, n int) {
		if err != ErrNone {
			cb(err)
			return
		}
		if n == len(p) {
			cb(ErrNone)
			return
		}
		WriteFull(s, p[n:], cb)
	})
}

var _ AsyncStream = (*Driver)(nil)
