package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeContentPlainTextStaysPlain(t *testing.T) {
	content, err := EncodeContent([]MessagePart{{Type: PartText, Text: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
}

func TestContentEnvelopeRoundTrip(t *testing.T) {
	parts := []MessagePart{
		{Type: PartText, Text: "look at this"},
		{Type: PartFile, File: &FilePart{
			URL: "data:image/png;base64,AAAA", MediaType: "image/png", Filename: "chart.png",
		}},
		ToolPart("read_page", "call-1"),
		{Type: PartText, Text: "and summarize"},
	}

	content, err := EncodeContent(parts)
	require.NoError(t, err)

	decoded := DecodeContent(content)
	require.Len(t, decoded, len(parts))

	assert.Equal(t, PartText, decoded[0].Type)
	assert.Equal(t, "look at this", decoded[0].Text)

	require.NotNil(t, decoded[1].File)
	assert.Equal(t, "image/png", decoded[1].File.MediaType)
	assert.Equal(t, "chart.png", decoded[1].File.Filename)

	name, ok := IsToolPart(decoded[2].Type)
	require.True(t, ok)
	assert.Equal(t, "read_page", name)
	assert.Equal(t, "call-1", decoded[2].ToolCallID)

	assert.Equal(t, "and summarize", decoded[3].Text)
}

func TestDecodeContentLegacyShapes(t *testing.T) {
	// Plain rows that predate the envelope decode to one text part.
	parts := DecodeContent("just text")
	require.Len(t, parts, 1)
	assert.Equal(t, "just text", parts[0].Text)

	// JSON that is not an envelope is still plain text.
	parts = DecodeContent(`{"foo": "bar"}`)
	require.Len(t, parts, 1)
	assert.Equal(t, `{"foo": "bar"}`, parts[0].Text)

	// Envelope without fileParts is valid; file refs are skipped.
	envelope := `{"textParts":["a"],"partsOrder":[{"index":0,"type":"text"},{"index":1,"type":"file"}],"originalContent":"a"}`
	parts = DecodeContent(envelope)
	require.Len(t, parts, 1)
	assert.Equal(t, "a", parts[0].Text)
}

func TestEncodeContentPreservesPartsOrder(t *testing.T) {
	parts := []MessagePart{
		ToolPart("list_pages", "call-1"),
		{Type: PartText, Text: "here are your pages"},
	}
	content, err := EncodeContent(parts)
	require.NoError(t, err)

	decoded := DecodeContent(content)
	require.Len(t, decoded, 2)
	_, isTool := IsToolPart(decoded[0].Type)
	assert.True(t, isTool, "tool part must come first, as emitted")
	assert.Equal(t, PartText, decoded[1].Type)
}
