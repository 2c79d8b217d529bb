package meter

import (
	"fmt"
	"strconv"
)

func parseInt32(s string, out *int32) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("meter: %q is not an integer: %w", s, err)
	}
	*out = int32(n)
	return *out, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
