package utils

import (
	"math/rand"

	"github.com/shopspring/decimal"
)

const lowercaseLetters = "abcdefghijklmnopqrstuvwxyz"

// RandomString returns a random lowercase string, used for synthetic external
// ids in bulk imports when the source row has none.
func RandomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = lowercaseLetters[rand.Intn(len(lowercaseLetters))]
	}
	return string(b)
}

func DereferencePtr[T any](ptr *T) T {
	var zero T
	if ptr == nil {
		return zero
	}
	return *ptr
}

func NewFalse() *bool {
	b := false
	return &b
}

func NewTrue() *bool {
	b := true
	return &b
}

func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func UniqueSlice[T comparable](in []T) []T {
	seen := make(map[T]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
