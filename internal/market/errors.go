package market

import (
	"errors"
	"fmt"
)

// ErrData 是所有 K 线数据错误的哨兵，用 errors.Is 判断。
var ErrData = errors.New("invalid candle data")

// DataError 描述具体出错的行与字段；Row 为 -1 表示整条序列级别的问题。
type DataError struct {
	Row    int
	Field  string
	Reason string
}

func (e *DataError) Error() string {
	switch {
	case e.Row < 0 && e.Field == "":
		return fmt.Sprintf("candle data: %s", e.Reason)
	case e.Row < 0:
		return fmt.Sprintf("candle data: %s: %s", e.Field, e.Reason)
	case e.Field == "":
		return fmt.Sprintf("candle data row %d: %s", e.Row, e.Reason)
	default:
		return fmt.Sprintf("candle data row %d field %s: %s", e.Row, e.Field, e.Reason)
	}
}

func (e *DataError) Is(target error) bool {
	return target == ErrData
}
