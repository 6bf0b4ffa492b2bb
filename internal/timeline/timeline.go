// Package timeline implements set operations over strictly increasing
// timestamp sequences.
package timeline

import "cmp"

// SortedUnion merges two strictly increasing sequences into their strictly
// increasing set union. It runs in O(len(a)+len(b)) and does not modify
// its inputs.
func SortedUnion[T cmp.Ordered](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	i, j := 0, 0

	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}

	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// ContiguousOffset returns the first offset i such that
// haystack[i:i+len(needle)] equals needle element-wise. An empty needle
// matches at 0. It returns -1 when there is no such run.
func ContiguousOffset[T comparable](haystack, needle []T) int {
	if len(needle) == 0 {
		return 0
	}

	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i] != needle[0] {
			continue
		}
		j := 1
		for j < len(needle) && haystack[i+j] == needle[j] {
			j++
		}
		if j == len(needle) {
			return i
		}
	}
	return -1
}

// IsContiguousSubsequence reports whether needle appears in haystack as one
// unbroken run. This is stricter than being a subset: [1,3] is a subset of
// [1,2,3] but not a contiguous subsequence of it.
func IsContiguousSubsequence[T comparable](haystack, needle []T) bool {
	return ContiguousOffset(haystack, needle) >= 0
}

// FirstDisorder returns the index of the first element that is not strictly
// greater than its predecessor, or -1 if s is strictly increasing.
func FirstDisorder[T cmp.Ordered](s []T) int {
	for i := 1; i < len(s); i++ {
		if s[i] <= s[i-1] {
			return i
		}
	}
	return -1
}
