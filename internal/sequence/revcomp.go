package sequence

var complement [256]byte

func init() {
	for i := range complement {
		complement[i] = byte(i)
	}
	pairs := []struct{ a, b byte }{{'A', 'T'}, {'C', 'G'}, {'a', 't'}, {'c', 'g'}}
	for _, p := range pairs {
		complement[p.a] = p.b
		complement[p.b] = p.a
	}
}

// ReverseComplement reverses s and swaps A/T and C/G, keeping each base's
// case. Any other byte is passed through unchanged.
func ReverseComplement(s string) string {
	n := len(s)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = complement[s[i]]
	}
	return string(out)
}
