package convert

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ItemType classifies one table row of an exported chat log.
type ItemType int

const (
	ItemUnknown ItemType = iota
	ItemTitle
	ItemGroup
	ItemTarget
	ItemDate
	ItemSystem
	ItemUser
)

func (t ItemType) String() string {
	switch t {
	case ItemTitle:
		return "title"
	case ItemGroup:
		return "group"
	case ItemTarget:
		return "target"
	case ItemDate:
		return "date"
	case ItemSystem:
		return "system"
	case ItemUser:
		return "user"
	default:
		return "unknown"
	}
}

type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentBreak
	SegmentImage
)

// Segment is one piece of a message body. Value holds the text, or the
// image src for SegmentImage.
type Segment struct {
	Kind  SegmentKind
	Value string
}

// Item is a parsed chat log row. Text is set for title, group, target and
// date rows; Sender, Time and Segments for messages.
type Item struct {
	Type     ItemType
	Text     string
	Sender   string
	Time     string
	Segments []Segment
}

const (
	titleText    = "消息记录"
	groupPrefix  = "消息分组:"
	targetPrefix = "消息对象:"
	datePrefix   = "日期:"
	systemSender = "系统消息(10000)"
	shakeSuffix  = "发送了一个窗口抖动。"
)

// itemReader streams the raw markup of table rows out of an html document.
type itemReader struct {
	z *html.Tokenizer
}

func newItemReader(r io.Reader) *itemReader {
	return &itemReader{z: html.NewTokenizer(r)}
}

// next returns the markup from a <tr> start tag through the first </tr>.
// A row cut off by the end of input is dropped and io.EOF returned.
func (ir *itemReader) next() (string, error) {
	var raw bytes.Buffer
	inRow := false
	for {
		tt := ir.z.Next()
		if tt == html.ErrorToken {
			err := ir.z.Err()
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", err
		}
		if inRow {
			raw.Write(ir.z.Raw())
		}
		if tt != html.StartTagToken && tt != html.EndTagToken {
			continue
		}

		name, _ := ir.z.TagName()
		if string(name) != "tr" {
			continue
		}
		switch {
		case tt == html.StartTagToken && !inRow:
			inRow = true
			raw.Write(ir.z.Raw())
		case tt == html.EndTagToken && inRow:
			return raw.String(), nil
		}
	}
}

var rowContext = &html.Node{Type: html.ElementNode, Data: "tbody", DataAtom: atom.Tbody}

// parseItem classifies a row by the number of div elements that are direct
// children of a cell: none for a date, one for the log headers, two for a
// message (sender line and body).
func parseItem(raw string) (Item, error) {
	nodes, err := html.ParseFragment(strings.NewReader(raw), rowContext)
	if err != nil {
		return Item{}, err
	}

	divs := cellDivs(nodes)
	switch len(divs) {
	case 0:
		var text strings.Builder
		for _, n := range nodes {
			text.WriteString(textOf(n))
		}
		parts := strings.Split(text.String(), datePrefix)
		if len(parts) < 2 {
			return Item{Type: ItemUnknown}, nil
		}
		return Item{Type: ItemDate, Text: strings.TrimSpace(parts[1])}, nil

	case 1:
		text := textOf(divs[0])
		switch {
		case text == titleText:
			return Item{Type: ItemTitle, Text: text}, nil
		case strings.HasPrefix(text, groupPrefix):
			return Item{Type: ItemGroup, Text: nbspToSpace(strings.TrimPrefix(text, groupPrefix))}, nil
		case strings.HasPrefix(text, targetPrefix):
			return Item{Type: ItemTarget, Text: nbspToSpace(strings.TrimPrefix(text, targetPrefix))}, nil
		}
		return Item{Type: ItemUnknown}, nil

	case 2:
		return parseMessage(divs[0], divs[1]), nil
	}
	return Item{Type: ItemUnknown}, nil
}

func parseMessage(head, body *html.Node) Item {
	item := Item{Type: ItemUser, Segments: messageSegments(body)}

	if sender := firstElement(head, atom.Div); sender != nil {
		item.Sender = textOf(sender)
	}
	if second := head.FirstChild; second != nil && second.NextSibling != nil {
		item.Time = textOf(second.NextSibling)
	}

	segs := item.Segments
	switch {
	case strings.HasPrefix(item.Sender, systemSender):
		item.Type = ItemSystem
	case len(segs) == 2 && segs[1].Kind == SegmentText && strings.HasSuffix(segs[1].Value, shakeSuffix):
		item.Type = ItemSystem
	}
	return item
}

// messageSegments reads the body div: text inside font elements (also when
// wrapped in b), one break per nested element, and images.
func messageSegments(body *html.Node) []Segment {
	var segs []Segment
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		tag := c
		if isElement(tag, atom.B) {
			if tag = firstElement(tag, atom.Font); tag == nil {
				continue
			}
		}

		switch {
		case isElement(tag, atom.Font):
			for e := tag.FirstChild; e != nil; e = e.NextSibling {
				switch e.Type {
				case html.TextNode:
					segs = append(segs, Segment{Kind: SegmentText, Value: e.Data})
				case html.ElementNode:
					segs = append(segs, Segment{Kind: SegmentBreak})
				}
			}
		case isElement(tag, atom.Img):
			if src, ok := attr(tag, "src"); ok {
				segs = append(segs, Segment{Kind: SegmentImage, Value: src})
			}
		}
	}
	return segs
}

func cellDivs(nodes []*html.Node) []*html.Node {
	var divs []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if isElement(n, atom.Div) && n.Parent != nil && isElement(n.Parent, atom.Td) {
			divs = append(divs, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return divs
}

// firstElement returns the first descendant of n with tag a, n excluded.
func firstElement(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isElement(c, a) {
			return c
		}
		if found := firstElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textOf(c))
	}
	return b.String()
}

func isElement(n *html.Node, a atom.Atom) bool {
	return n.Type == html.ElementNode && n.DataAtom == a
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func nbspToSpace(s string) string {
	return strings.ReplaceAll(s, "\u00a0", " ")
}
