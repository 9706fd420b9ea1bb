package detector

import "strings"

// Similarity returns a ratio in [0,1] measuring how alike two strings are.
// It is the classic sequence-matcher ratio: twice the total length of all
// matching blocks divided by the combined length of both inputs. Comparison
// is case-insensitive; empty input scores zero.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	matched := matchingBlocks(ra, rb)
	return 2.0 * float64(matched) / float64(len(ra)+len(rb))
}

// matchingBlocks sums the lengths of the matching blocks found by
// recursively locating the longest common substring and matching the
// regions to its left and right.
func matchingBlocks(a, b []rune) int {
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingBlocks(a[:ai], b[:bi])
	total += matchingBlocks(a[ai+size:], b[bi+size:])
	return total
}

func longestMatch(a, b []rune) (bestA, bestB, bestSize int) {
	// j2len[j] holds the length of the match ending at a[i], b[j].
	j2len := make(map[int]int)
	for i := range a {
		newJ2len := make(map[int]int)
		for j := range b {
			if a[i] == b[j] {
				k := j2len[j-1] + 1
				newJ2len[j] = k
				if k > bestSize {
					bestA = i - k + 1
					bestB = j - k + 1
					bestSize = k
				}
			}
		}
		j2len = newJ2len
	}
	return bestA, bestB, bestSize
}
