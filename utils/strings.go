package utils

import "math/rand"

const letterBytes = "abcdefghijklmnopqrstuvwxyz"

// RandomString returns a random lowercase identifier of length n, handy for
// disposable savepoint and fixture names in tests.
func RandomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}
