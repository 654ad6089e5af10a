package keyboard

import "testing"

func TestChunk(t *testing.T) {
	btns := []InlineBtn{{Text: "a"}, {Text: "b"}, {Text: "c"}}
	rows := Chunk(btns, 2)
	if len(rows) != 2 || len(rows[0]) != 2 || len(rows[1]) != 1 {
		t.Fatalf("Chunk(3, 2) = %v", rows)
	}
	if rows := Chunk(btns, 0); len(rows) != 3 {
		t.Fatalf("Chunk(3, 0) rows = %d, want 3", len(rows))
	}
}

func TestInlineButtonsRowsURLAndData(t *testing.T) {
	markup := InlineButtonsRows(
		[]InlineBtn{{Text: "Native", Unique: "asset", Data: "native"}},
		nil,
		[]InlineBtn{{Text: "Open Link", URL: "https://example.com"}},
	)
	if markup == nil || len(markup.InlineKeyboard) != 2 {
		t.Fatalf("markup = %+v", markup)
	}
	data := markup.InlineKeyboard[0][0]
	if data.Unique != "asset" || data.Data != "native" || data.URL != "" {
		t.Fatalf("data button = %+v", data)
	}
	link := markup.InlineKeyboard[1][0]
	if link.URL != "https://example.com" || link.Text != "Open Link" {
		t.Fatalf("url button = %+v", link)
	}
}

func TestInlineButtonsRowsEmpty(t *testing.T) {
	if m := InlineButtonsRows(); m != nil {
		t.Fatalf("empty keyboard = %+v, want nil", m)
	}
}

func TestInlineButtonsRowsDropsOversizedData(t *testing.T) {
	long := make([]byte, 80)
	for i := range long {
		long[i] = 'x'
	}
	markup := InlineButtonsRows(
		[]InlineBtn{{Text: "Too long", Unique: "asset", Data: string(long)}},
		[]InlineBtn{{Text: "Yes", Unique: "confirm", Data: "true"}, {Text: "No", Unique: "confirm", Data: "false"}},
	)
	if markup == nil || len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 2 {
		t.Fatalf("markup = %+v", markup)
	}
}
