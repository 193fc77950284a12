// 包 position：位置记录模型、时间戳编解码与入库前校验，供导入与查询两条链路共用
package position

import (
	"time"

	"github.com/paulmach/orb"
)

// TimestampLayout：对外统一的时间戳格式（秒级，无时区后缀，按 UTC 解释）
const TimestampLayout = "2006-01-02T15:04:05"

// Record：一条已校验的位置记录
// 约束：(ObjectID, CreationTime) 为全局唯一主键；入库后不可变，修正数据只能以新的 CreationTime 写入新记录。
// 经纬度各自可空，二者齐全时才派生空间点。
type Record struct {
	ObjectID     string
	CreationTime time.Time
	Latitude     *float64
	Longitude    *float64
}

// HasCompleteCoordinates：经纬度是否齐全
func (r Record) HasCompleteCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Location：派生的 WGS84 点（orb 约定 X=经度, Y=纬度）；坐标不全时 ok=false
func (r Record) Location() (orb.Point, bool) {
	if !r.HasCompleteCoordinates() {
		return orb.Point{}, false
	}
	return orb.Point{*r.Longitude, *r.Latitude}, true
}

// Key：主键的字符串形式，用于日志与内存索引
func (r Record) Key() string {
	return r.ObjectID + "@" + FormatTimestamp(r.CreationTime)
}

// ParseTimestamp：按固定格式解析时间戳
// 异常：格式不符统一返回 *InvalidTimestampFormatError，便于调用方映射为特定的客户端错误
// 约束：time.Parse 会额外接受秒后的小数部分（.5 / ,999），这里要求回写结果与输入逐字一致
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil || t.Format(TimestampLayout) != s {
		return time.Time{}, &InvalidTimestampFormatError{Value: s}
	}
	return t, nil
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Float：取地址的小工具，构造可空坐标
func Float(v float64) *float64 { return &v }
