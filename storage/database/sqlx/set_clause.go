package sqlxrepos

import (
	"strconv"
	"strings"
)

// setClause builds the SET list of a partial UPDATE with numbered placeholders.
type setClause struct {
	cols []string
	args []interface{}
}

func newSetClause() *setClause {
	return &setClause{}
}

func (s *setClause) add(col string, val interface{}) {
	s.cols = append(s.cols, col+" = "+s.next(val))
}

// next registers val and returns its placeholder.
func (s *setClause) next(val interface{}) string {
	s.args = append(s.args, val)
	return "$" + strconv.Itoa(len(s.args))
}

func (s *setClause) String() string {
	return strings.Join(s.cols, ", ")
}
