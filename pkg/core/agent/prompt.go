package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"agentic_delist/pkg/core/cninfo"
	"agentic_delist/pkg/core/validate"
)

// systemPrompt is rendered once at startup; the 退市类型 vocabulary is
// generated from the validator's taxonomy so the two can never diverge.
var systemPrompt = fmt.Sprintf(`你是一名证券退市信息核查专员。你的任务是围绕一家已退市公司,
从交易所公告中提取并核实退市档案字段。

字段说明:
- code: 6位股票代码
- 名称: 公司简称
- 退市日期: 终止上市日期, 格式 YYYY-MM-DD
- 退市原因: 退市的直接原因(如 吸收合并 / 连续亏损 / 主动退市)
- 退市类型: 必须是以下英文代码之一(括号内为含义):
  %s
- 首次退市通知日: 首次披露可能终止上市的公告日期, YYYY-MM-DD
- 停牌开始日: 退市前最后停牌开始日期, YYYY-MM-DD
- 置换标的code: 换股/吸收合并时换入证券的代码
- 置换标的名称: 换入证券的简称
- 置换比例: 换股比例, 格式如 1:0.87
- 置换完成日期: 换股登记完成日期, YYYY-MM-DD
- 来源公告: 关键结论所依据的公告标题
- 公告URL: 该公告的链接

规则:
1. MERGE 与 RECODE 类退市必须给出置换标的与置换比例; FORCE_* 等类型不得填写置换字段。
2. 只依据公告原文, 不要臆测。暂不确定的字段保持现状, 不要填入空字符串。
3. 无法从任何公告确认的字段, 在最终提交时填 "NaN"。
4. 每一轮只返回一个 JSON 对象, 不要输出其他文字。

返回格式:
{
  "thought": "本轮推理过程",
  "updated_state": {"字段": "值", ...},
  "action": "READ_DOC" | "SEARCH_MORE" | "SUBMIT" | "SKIP",
  "action_params": {
    "doc_id": "READ_DOC 时要阅读的公告 id",
    "keyword": "SEARCH_MORE 时的检索关键词",
    "reason": "SKIP 时的原因"
  }
}

动作说明:
- READ_DOC: 阅读候选列表中的某条公告全文, doc_id 必须来自列表。
- SEARCH_MORE: 用新关键词再检索一批公告。
- SUBMIT: 所有可确认字段已就绪, 提交当前状态。
- SKIP: 判断该公司不属于核查范围或资料不足, 放弃并说明原因。`,
	delistTypeGlossary())

// delistTypeGlossary renders the validator's outcome taxonomy as
// "KEY(中文含义)" pairs in deterministic order.
func delistTypeGlossary() string {
	keys := make([]string, 0, len(validate.DelistTypes))
	for k := range validate.DelistTypes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s(%s)", k, validate.DelistTypes[k])
	}
	return strings.Join(parts, ", ")
}

// docListCap bounds how many candidate announcements are shown per turn.
const docListCap = 30

// buildUserPrompt renders one turn of context: the working state, any
// validator feedback from the previous submit, the candidate document
// list, and the excerpt of the document just read (if any).
func buildUserPrompt(state map[string]string, lastError string, docs []cninfo.DocumentRef, docContent string, turn, maxTurns int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "第 %d/%d 轮。\n\n", turn, maxTurns)

	stateJSON, _ := json.MarshalIndent(state, "", "  ")
	b.WriteString("当前已确认状态:\n")
	b.Write(stateJSON)
	b.WriteString("\n\n")

	if lastError != "" {
		b.WriteString("上一轮提交未通过校验, 请修正后再提交:\n")
		b.WriteString(lastError)
		b.WriteString("\n\n")
	}

	b.WriteString("候选公告列表:\n")
	n := len(docs)
	if n > docListCap {
		n = docListCap
	}
	for _, d := range docs[:n] {
		fmt.Fprintf(&b, "- id=%s  %s  %s\n", d.ID, d.Date, d.Title)
	}
	if len(docs) > n {
		fmt.Fprintf(&b, "(另有 %d 条未列出)\n", len(docs)-n)
	}
	b.WriteString("\n")

	if docContent != "" {
		b.WriteString("刚读取的公告内容节选:\n")
		b.WriteString(docContent)
		b.WriteString("\n\n")
	}

	b.WriteString("请返回下一步动作的 JSON。")
	return b.String()
}
