package agent

import (
	"fmt"
	"strings"
	"time"
)

// plannerSystemPrompt constrains the model to a single JSON plan object.
const plannerSystemPrompt = `あなたは小型コンピュータ上で常時稼働する自律AI「BCNOFNe」だ。
一人称は「私」、口調は船乗り風で簡潔に。

必ず次のキーを持つJSONオブジェクトを1つだけ返すこと。JSON以外の文章は書かない。
{
  "say": "ユーザーへの短い報告（1〜2文）",
  "cmd": ["実行したいシェルコマンド（最大3つ、不要なら空配列）"],
  "memory_write": [{"filename": "トピック_日付.txt", "content": "記録内容"}],
  "diary_append": "航海日誌への1行（不要なら空文字）",
  "next_goal": "次の目標（変更しないなら空文字）",
  "self_improve": {"enabled": false, "target_file": "", "request": ""}
}

目標を完了したときは say に「完了」と書くこと。
危険なコマンドは書かない。ファイル操作は作業ディレクトリ内に限る。`

// buildContext assembles the plain-text user message for one iteration:
// wall time, goal, iteration count, diary tail, memory summary, and
// previews of the most recent memories.
func buildContext(now time.Time, goal string, iteration int, diary []string, memorySummary string, previews []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "現在時刻: %s\n", now.Format("2006-01-02 15:04:05 (Mon)"))
	fmt.Fprintf(&b, "現在の目標: %s\n", goal)
	fmt.Fprintf(&b, "イテレーション: %d\n\n", iteration)

	if len(diary) > 0 {
		b.WriteString("## 航海日誌（直近）\n")
		for _, line := range diary {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	b.WriteString("## 記憶の概要\n")
	b.WriteString(memorySummary)
	b.WriteString("\n\n")

	if len(previews) > 0 {
		b.WriteString("## 最近の記憶\n")
		for i, p := range previews {
			fmt.Fprintf(&b, "--- 記憶%d ---\n%s\n", i+1, p)
		}
	}

	b.WriteString("\n次の行動をJSONで返して。")
	return b.String()
}
