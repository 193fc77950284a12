package position

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Identity：原始记录中的嵌套身份块
// 背景：上游数据以大写别名（OBJECT_ID/CREATION_DATE）给出，也接受字段原名，两者同时出现时以别名为准
type Identity struct {
	ObjectID     string
	CreationDate string
}

func (id *Identity) UnmarshalJSON(b []byte) error {
	var aux struct {
		ObjectIDAlias     string `json:"OBJECT_ID"`
		CreationDateAlias string `json:"CREATION_DATE"`
		ObjectID          string `json:"object_id"`
		CreationDate      string `json:"creation_date"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	id.ObjectID = firstNonEmpty(aux.ObjectIDAlias, aux.ObjectID)
	id.CreationDate = firstNonEmpty(aux.CreationDateAlias, aux.CreationDate)
	return nil
}

// RawRecord：导入流中的一条未校验记录，其余字段忽略
type RawRecord struct {
	SpaceTrack Identity `json:"spaceTrack"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
}

// DecodeRaw：将单个 JSON 元素解码为 RawRecord
// 异常：类型不符（如纬度为字符串）转换为 *ValidationError，调用方可按单条记录处理
func DecodeRaw(b []byte) (RawRecord, error) {
	var raw RawRecord
	if err := json.Unmarshal(b, &raw); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return RawRecord{}, &ValidationError{Field: te.Field, Reason: "expected " + te.Type.String()}
		}
		return RawRecord{}, &ValidationError{Reason: err.Error()}
	}
	return raw, nil
}

// checked：校验视图，范围约束以结构体标签声明
type checked struct {
	ObjectID     string   `json:"object_id" validate:"required,max=255"`
	CreationDate string   `json:"creation_date" validate:"required"`
	Latitude     *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude    *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

type coordinates struct {
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 错误中使用 json 字段名，与对外字段保持一致
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate：原始记录 -> Record
// 约束：纯函数；先查必填与范围，再查时间戳格式；越界不做截断
func Validate(raw RawRecord) (Record, error) {
	c := checked{
		ObjectID:     raw.SpaceTrack.ObjectID,
		CreationDate: raw.SpaceTrack.CreationDate,
		Latitude:     raw.Latitude,
		Longitude:    raw.Longitude,
	}
	if err := validate.Struct(c); err != nil {
		return Record{}, translate(err)
	}
	ts, err := ParseTimestamp(c.CreationDate)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ObjectID:     c.ObjectID,
		CreationTime: ts,
		Latitude:     c.Latitude,
		Longitude:    c.Longitude,
	}, nil
}

// CheckCoordinates：查询入参的坐标范围校验，规则与入库一致
func CheckCoordinates(lat, lon float64) error {
	if err := validate.Struct(coordinates{Latitude: &lat, Longitude: &lon}); err != nil {
		return translate(err)
	}
	return nil
}

// translate：validator 错误 -> *ValidationError，仅取第一个字段错误
func translate(err error) error {
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) || len(fes) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	fe := fes[0]
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: fe.Field(), Reason: "is required"}
	case "max":
		return &ValidationError{Field: fe.Field(), Reason: "must be at most " + fe.Param() + " characters"}
	case "gte", "lte":
		lo, hi := "-90", "90"
		if fe.Field() == "longitude" {
			lo, hi = "-180", "180"
		}
		return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("must be between %s and %s or null", lo, hi)}
	}
	return &ValidationError{Field: fe.Field(), Reason: "failed " + fe.Tag()}
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
