// Package validate checks extracted delisting records for structural and
// semantic consistency. Validate is a pure function: deterministic for a
// given input, no network or filesystem access. It is called both from
// the extraction loop (where failures are fed back for self-correction)
// and from the CLI (where failures mean a non-zero exit).
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// State field keys. The extraction state uses the source-language keys
// end to end (prompts, CSV headers, validator) so a record round-trips
// without a mapping layer.
const (
	FieldCode        = "code"
	FieldName        = "名称"
	FieldDelistDate  = "退市日期"
	FieldReason      = "退市原因"
	FieldType        = "退市类型"
	FieldFirstNotice = "首次退市通知日"
	FieldSuspendDate = "停牌开始日"
	FieldSwapCode    = "置换标的code"
	FieldSwapName    = "置换标的名称"
	FieldSwapRatio   = "置换比例"
	FieldSwapDone    = "置换完成日期"
	FieldSourceTitle = "来源公告"
	FieldSourceURL   = "公告URL"
)

// Placeholder is the explicit "no value" marker used throughout the
// extraction state. Treated identically to an empty string.
const Placeholder = "NaN"

// DelistTypes is the fixed outcome taxonomy.
var DelistTypes = map[string]string{
	"MERGE":       "吸收合并退市",
	"RECODE":      "更名换码",
	"VOLUNTARY":   "主动退市",
	"TENDER":      "要约收购退市",
	"FORCE_FIN":   "强制退市_财务",
	"FORCE_TRADE": "强制退市_交易",
	"FORCE_FRAUD": "强制退市_违法",
	"FORCE_NORM":  "强制退市_规范",
	"OTHER":       "其他",
}

// Swap-field requirements per outcome type. MERGE and RECODE replace the
// holding with another listed security, so the swap fields are
// structurally required; TENDER may be a cash or a stock offer, so
// partial presence is only suspicious, not wrong. Format rules on the
// swap fields hold for every type.
var (
	typesRequireSwap = map[string]bool{"MERGE": true, "RECODE": true}
	typesMaybeSwap   = map[string]bool{"TENDER": true}

	swapFields = []string{FieldSwapCode, FieldSwapName, FieldSwapRatio, FieldSwapDone}

	requiredFields = []string{
		FieldCode, FieldName, FieldDelistDate, FieldReason, FieldType,
		FieldFirstNotice, FieldSuspendDate, FieldSourceTitle, FieldSourceURL,
	}

	dateFields = []string{FieldDelistDate, FieldFirstNotice, FieldSuspendDate, FieldSwapDone}
)

// Issue kinds.
const (
	KindMissingRequired = "MISSING_REQUIRED"
	KindInvalidFormat   = "INVALID_FORMAT"
	KindLogicError      = "LOGIC_ERROR"
	KindUnknownType     = "UNKNOWN_TYPE"
	KindFieldConflict   = "FIELD_CONFLICT"
	KindShortInterval   = "SHORT_INTERVAL"
	KindPartialSwap     = "PARTIAL_SWAP"
)

// Issue is one validation finding.
type Issue struct {
	Kind    string `json:"type"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Result is the outcome of validating one record. Errors block
// submission; warnings are informational.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

func (r *Result) errorf(kind, field, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) warnf(kind, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// ErrorText joins all error messages; the extraction loop feeds this back
// to the reasoning service verbatim.
func (r *Result) ErrorText() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

func present(data map[string]string, field string) bool {
	v := data[field]
	return v != "" && v != Placeholder
}

var (
	codePattern  = regexp.MustCompile(`^\d{6}$`)
	ratioPattern = regexp.MustCompile(`^\d+:\d+\.?\d*$`)
)

const dateLayout = "2006-01-02"

// Validate checks a candidate record against the fixed rule set.
func Validate(data map[string]string) *Result {
	res := &Result{}

	for _, field := range requiredFields {
		if !present(data, field) {
			res.errorf(KindMissingRequired, field, "必填字段 '%s' 缺失或为空", field)
		}
	}

	if present(data, FieldCode) && !codePattern.MatchString(data[FieldCode]) {
		res.errorf(KindInvalidFormat, FieldCode,
			"股票代码格式错误: '%s'，应为6位数字字符串（如 \"000001\"）", data[FieldCode])
	}

	for _, field := range dateFields {
		if present(data, field) {
			if _, err := time.Parse(dateLayout, data[field]); err != nil {
				res.errorf(KindInvalidFormat, field,
					"日期格式错误: '%s'，应为 YYYY-MM-DD", data[field])
			}
		}
	}

	checkDateLogic(data, res)

	delistType := data[FieldType]
	if present(data, FieldType) {
		if _, ok := DelistTypes[delistType]; !ok {
			res.errorf(KindUnknownType, FieldType,
				"未知的退市类型: '%s'，有效值: %s", delistType, strings.Join(typeKeys(), ", "))
		}
	}

	checkSwapConsistency(data, delistType, res)

	if present(data, FieldSourceURL) {
		if !strings.HasPrefix(data[FieldSourceURL], "http://") && !strings.HasPrefix(data[FieldSourceURL], "https://") {
			res.errorf(KindInvalidFormat, FieldSourceURL,
				"URL格式错误: '%s'，应以 http:// 或 https:// 开头", data[FieldSourceURL])
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func parseDate(data map[string]string, field string) (time.Time, bool) {
	if !present(data, field) {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, data[field])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// checkDateLogic enforces first-notice < delist, and
// first-notice <= suspension <= delist. A gap under 7 days between
// notice and suspension is only a warning: it usually means an earlier
// notice announcement exists and was missed, which the extraction loop
// should go look for.
func checkDateLogic(data map[string]string, res *Result) {
	notice, hasNotice := parseDate(data, FieldFirstNotice)
	suspend, hasSuspend := parseDate(data, FieldSuspendDate)
	delist, hasDelist := parseDate(data, FieldDelistDate)

	if hasNotice && hasDelist && !notice.Before(delist) {
		res.errorf(KindLogicError, FieldFirstNotice,
			"首次退市通知日(%s)应早于退市日期(%s)", data[FieldFirstNotice], data[FieldDelistDate])
	}
	if hasSuspend {
		if hasNotice {
			if suspend.Before(notice) {
				res.errorf(KindLogicError, FieldSuspendDate,
					"停牌开始日(%s)应晚于或等于首次退市通知日(%s)", data[FieldSuspendDate], data[FieldFirstNotice])
			} else if gap := int(suspend.Sub(notice).Hours() / 24); gap < 7 {
				res.warnf(KindShortInterval,
					"首次退市通知日(%s)与停牌开始日(%s)仅相隔%d天，投资者反应时间很短。"+
						"请确认首次通知日是否正确，可能需要搜索更早的公告（如'筹划重组'、'筹划重大事项'）",
					data[FieldFirstNotice], data[FieldSuspendDate], gap)
			}
		}
		if hasDelist && suspend.After(delist) {
			res.errorf(KindLogicError, FieldSuspendDate,
				"停牌开始日(%s)应早于或等于退市日期(%s)", data[FieldSuspendDate], data[FieldDelistDate])
		}
	}
}

func checkSwapConsistency(data map[string]string, delistType string, res *Result) {
	// Format rules apply to any present value, whatever the type says
	// about whether the field should exist at all.
	if present(data, FieldSwapRatio) && !ratioPattern.MatchString(data[FieldSwapRatio]) {
		res.errorf(KindInvalidFormat, FieldSwapRatio,
			"置换比例格式错误: '%s'，应为 '1:X.XXXX' 格式", data[FieldSwapRatio])
	}
	if present(data, FieldSwapCode) && !codePattern.MatchString(data[FieldSwapCode]) {
		res.errorf(KindInvalidFormat, FieldSwapCode,
			"置换标的代码格式错误: '%s'，应为6位数字（如 \"600150\"）", data[FieldSwapCode])
	}

	switch {
	case typesRequireSwap[delistType]:
		for _, field := range swapFields {
			if !present(data, field) {
				res.errorf(KindFieldConflict, field,
					"退市类型为 %s，字段 '%s' 必须有值（当前为 NaN）", delistType, field)
			}
		}

	case typesMaybeSwap[delistType]:
		hasAny, hasAll := false, true
		for _, field := range swapFields {
			if present(data, field) {
				hasAny = true
			} else {
				hasAll = false
			}
		}
		if hasAny && !hasAll {
			res.warnf(KindPartialSwap, "要约收购退市的置换字段不完整，请确认是现金要约还是股票要约")
		}

	case delistType != "" && delistType != Placeholder:
		// Known non-swap type (or unknown string, already reported):
		// swap fields must be jointly absent.
		if _, known := DelistTypes[delistType]; known {
			for _, field := range swapFields {
				if present(data, field) {
					res.errorf(KindFieldConflict, field,
						"退市类型为 %s，字段 '%s' 应为 NaN（当前为 '%s'）", delistType, field, data[field])
				}
			}
		}
	}
}

func typeKeys() []string {
	keys := make([]string, 0, len(DelistTypes))
	for k := range DelistTypes {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic messages
	return keys
}
