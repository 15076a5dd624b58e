package core

import "strconv"

// Number formatting for report rows and log lines without fmt.

// appendUint appends the decimal form of n
func appendUint(buf []byte, n uint64) []byte {
	return strconv.AppendUint(buf, n, 10)
}

// appendFixed appends v with exactly prec digits after the decimal point,
// the same as "%.<prec>f".
func appendFixed(buf []byte, v float64, prec int) []byte {
	return strconv.AppendFloat(buf, v, 'f', prec, 64)
}

// utoa converts an unsigned integer to a string
func utoa(n uint64) string {
	return string(appendUint(nil, n))
}

// ftoa formats v with prec decimals
func ftoa(v float64, prec int) string {
	return string(appendFixed(nil, v, prec))
}
