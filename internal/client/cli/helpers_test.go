package cli

import (
	"bufio"
	"strings"
)

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}
