package ratelimit

// Fixed admits rps requests per second with the given burst (0 selects
// int(rps)).
func Fixed(rps float64, burst int, opts ...Option) *Bucket {
	return New(rps, burst, opts...)
}

// Conservative admits rps requests per second with no bursting, for APIs
// with strict limits.
func Conservative(rps float64, opts ...Option) *Bucket {
	return New(rps, 1, opts...)
}

// Burst admits rps requests per second sustained and up to burst at once.
func Burst(rps float64, burst int, opts ...Option) *Bucket {
	return New(rps, burst, opts...)
}
