package typeahead

import "context"

// Option is one selectable entry. ID is unique within a result set.
type Option[T any] struct {
	ID      string
	Label   string
	Payload T
}

// Request is what a remote source receives for a settled query.
type Request struct {
	// Query is the trimmed query text. May be empty when priming the list.
	Query string
	// Limit is a page-size hint.
	Limit int
}

// FetchFunc queries a remote source. It must honour ctx cancellation.
type FetchFunc[T any] func(ctx context.Context, req Request) (FetchResult[T], error)

// Shape tags the form a remote response arrived in.
type Shape int

const (
	// ShapeInvalid is any response that is neither a list nor a page.
	ShapeInvalid Shape = iota
	// ShapeList is a bare array of options.
	ShapeList
	// ShapePage is an object exposing an items array and an optional count.
	ShapePage
)

func (s Shape) String() string {
	switch s {
	case ShapeList:
		return "list"
	case ShapePage:
		return "page"
	default:
		return "invalid"
	}
}

// FetchResult is the tagged union returned by a FetchFunc.
type FetchResult[T any] struct {
	Shape Shape
	Items []Option[T]
	// Count is the server-side total for ShapePage, when reported.
	Count *int
}

// List wraps a bare array response.
func List[T any](items []Option[T]) FetchResult[T] {
	return FetchResult[T]{Shape: ShapeList, Items: items}
}

// Page wraps an {items, count} response. count < 0 means not reported.
func Page[T any](items []Option[T], count int) FetchResult[T] {
	res := FetchResult[T]{Shape: ShapePage, Items: items}
	if count >= 0 {
		c := count
		res.Count = &c
	}
	return res
}

// Invalid marks a response that matched no known shape.
func Invalid[T any]() FetchResult[T] {
	return FetchResult[T]{Shape: ShapeInvalid}
}

// normalize turns any FetchResult into a result set with unique IDs.
// Unknown shapes yield an empty set.
func normalize[T any](res FetchResult[T]) []Option[T] {
	var items []Option[T]
	switch res.Shape {
	case ShapeList, ShapePage:
		items = res.Items
	case ShapeInvalid:
		return []Option[T]{}
	default:
		return []Option[T]{}
	}
	out := make([]Option[T], 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, opt := range items {
		if _, dup := seen[opt.ID]; dup {
			continue
		}
		seen[opt.ID] = struct{}{}
		out = append(out, opt)
	}
	return out
}
