package source

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/email-analyzer/internal/model"
)

// columnAliases maps accepted header names onto message fields. Mail
// client exports disagree on naming.
var columnAliases = map[string]string{
	"id":              "id",
	"message_id":      "id",
	"subject":         "subject",
	"body":            "body",
	"content":         "body",
	"sender":          "sender",
	"from":            "sender",
	"received_at":     "received_at",
	"received":        "received_at",
	"date":            "received_at",
	"conversation_id": "conversation_id",
	"thread_id":       "conversation_id",
	"importance":      "importance",
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04",
	"1/2/06 15:04",
	"2006-01-02",
}

func parseCSV(data []byte) ([]model.Message, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "source: read csv row")
		}
		rows = append(rows, record)
	}
	return messagesFromRows(rows)
}

// parseXLSX reads the first sheet of a workbook.
func parseXLSX(data []byte) ([]model.Message, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "source: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return []model.Message{}, nil
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return messagesFromRows(rows)
}

// messagesFromRows maps a header row plus data rows onto messages. Blank
// rows are skipped.
func messagesFromRows(rows [][]string) ([]model.Message, error) {
	if len(rows) == 0 {
		return []model.Message{}, nil
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(h, " ", "_")))
		if field, ok := columnAliases[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["id"]; !ok {
		return nil, eris.New("source: header has no id column")
	}

	msgs := make([]model.Message, 0, len(rows)-1)
	for n, row := range rows[1:] {
		get := func(field string) string {
			i, ok := cols[field]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		if strings.Join(row, "") == "" {
			continue
		}

		msg := model.Message{
			ID:             get("id"),
			Subject:        get("subject"),
			Body:           get("body"),
			Sender:         get("sender"),
			ConversationID: get("conversation_id"),
			Importance:     model.Importance(strings.ToLower(get("importance"))),
		}
		if v := get("received_at"); v != "" {
			t, err := parseTime(v)
			if err != nil {
				return nil, eris.Wrapf(err, "source: row %d", n+2)
			}
			msg.ReceivedAt = t
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func parseTime(v string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized timestamp %q", v)
}
