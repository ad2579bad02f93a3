// Package labels は備品ラベル（テプラ等）の差し込み用CSVを作る
//
// 列: 管理番号, 品名, 分類, 保管場所
// 既定は CP932。Shift_JIS に無い文字（タイ語など）は置換文字になるので、
// その場合は encoding=utf16 を使う。
package labels

import (
	"encoding/csv"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

type Encoding string

const (
	EncodingCP932 Encoding = "cp932"
	EncodingUTF16 Encoding = "utf16"
)

// Row: ラベル1枚分
type Row struct {
	StockID  string
	Name     string
	Category string
	Location string
}

func (r Row) empty() bool {
	return r.StockID == "" && r.Name == "" && r.Category == "" && r.Location == ""
}

func encoderFor(e Encoding) *encoding.Encoder {
	if e == EncodingUTF16 {
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	}
	return encoding.ReplaceUnsupported(japanese.ShiftJIS.NewEncoder())
}

// WriteCSV は空行を除いて w に書き出し、書いた行数を返す
func WriteCSV(w io.Writer, rows []Row, enc Encoding) (int, error) {
	tw := transform.NewWriter(w, encoderFor(enc))
	cw := csv.NewWriter(tw)
	// ラベルソフトは CRLF を期待する
	cw.UseCRLF = true

	n := 0
	for _, r := range rows {
		if r.empty() {
			continue
		}
		record := []string{clean(r.StockID), clean(r.Name), clean(r.Category), clean(r.Location)}
		if err := cw.Write(record); err != nil {
			return n, err
		}
		n++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, err
	}
	return n, tw.Close()
}

// 改行はラベル上で崩れるので空白にする
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
