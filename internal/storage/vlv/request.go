package vlv

import (
	"errors"
	"fmt"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
)

// VLV errors.
var (
	// ErrOffsetRange is returned for a negative target offset.
	ErrOffsetRange = errors.New("vlv: target offset out of range")
	// ErrIndexUnusable is returned when an index cannot answer a query: it
	// is untrusted, being rebuilt, or built for a different base, scope,
	// filter or sort order.
	ErrIndexUnusable = errors.New("vlv: index cannot answer this search")
)

// ResultCode is an LDAP result code carried in a VLV response.
type ResultCode int

// Result codes of RFC 2891 and the VLV draft.
const (
	ResultSuccess            ResultCode = 0
	ResultSortControlMissing ResultCode = 60
	ResultOffsetRangeError   ResultCode = 61
)

// ResultError is a failed VLV request together with the response values
// the server reports.
type ResultError struct {
	Code           ResultCode
	TargetPosition int
	ContentCount   int
	Err            error
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("vlv result %d (target=%d, count=%d): %v", e.Code, e.TargetPosition, e.ContentCount, e.Err)
}

func (e *ResultError) Unwrap() error { return e.Err }

// TargetType selects how a request addresses its target entry.
type TargetType int

const (
	// TargetByOffset addresses the target by its 1-based position.
	TargetByOffset TargetType = iota
	// TargetByAssertion addresses the first entry whose first sort value is
	// at or after an assertion value.
	TargetByAssertion
)

// Request is a virtual list view window request.
type Request struct {
	Target      TargetType
	BeforeCount int
	AfterCount  int
	Offset      int
	Assertion   []byte
}

// NewOffsetRequest returns a request for the window around the entry at
// 1-based position offset.
func NewOffsetRequest(offset, before, after int) *Request {
	return &Request{Target: TargetByOffset, Offset: offset, BeforeCount: before, AfterCount: after}
}

// NewAssertionRequest returns a request for the window around the first
// entry sorting at or after value.
func NewAssertionRequest(value []byte, before, after int) *Request {
	return &Request{Target: TargetByAssertion, Assertion: value, BeforeCount: before, AfterCount: after}
}

// Response is the answer to a window request: the IDs in sort order, the
// 1-based position of the target and the number of entries in the list.
type Response struct {
	IDs            []entry.ID
	TargetPosition int
	ContentCount   int
}

// Query describes the search a VLV index is asked to answer.
type Query struct {
	BaseDN    string
	Scope     entry.Scope
	Filter    *filter.Filter
	SortOrder SortOrder
	VLV       *Request // nil returns the whole list in order
}

// offsetWindow resolves an offset request against a list of count entries.
// It returns the 0-based start position, the number of IDs wanted and the
// reported target position.
func offsetWindow(req *Request, count int) (start, want, target int, err error) {
	before, after := max(req.BeforeCount, 0), max(req.AfterCount, 0)
	target = req.Offset
	if target < 0 {
		return 0, 0, 0, &ResultError{
			Code:           ResultOffsetRangeError,
			TargetPosition: target,
			ContentCount:   count,
			Err:            ErrOffsetRange,
		}
	}
	if target == 0 {
		target = 1
	}
	listOffset := target - 1
	start = listOffset - before
	switch {
	case start < 0:
		start = 0
		before = listOffset
	case start >= count:
		target = count + 1
		listOffset = count
		before = min(before, listOffset)
		start = listOffset - before
		after = 0
	}
	return start, 1 + before + after, target, nil
}

// Page answers req from a fully sorted list of IDs, exactly as an index
// holding that list would. For assertion requests target is the 0-based
// position of the first entry at or after the assertion.
func Page(ids []entry.ID, req *Request, target int) (*Response, error) {
	count := len(ids)
	if req == nil {
		return &Response{IDs: ids, ContentCount: count}, nil
	}
	if req.Target == TargetByAssertion {
		target = min(max(target, 0), count)
		lo := max(target-max(req.BeforeCount, 0), 0)
		hi := min(target+max(req.AfterCount, 0)+1, count)
		return &Response{
			IDs:            append([]entry.ID{}, ids[lo:hi]...),
			TargetPosition: target + 1,
			ContentCount:   count,
		}, nil
	}

	start, want, pos, err := offsetWindow(req, count)
	if err != nil {
		return nil, err
	}
	end := min(start+want, count)
	out := []entry.ID{}
	if start < end {
		out = append(out, ids[start:end]...)
	}
	return &Response{IDs: out, TargetPosition: pos, ContentCount: count}, nil
}
