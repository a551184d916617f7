package alarm

import (
	"fmt"
	"strings"

	"frameworks/lookout/pkg/api/lookout"
)

// TestPhrase is spoken by TestSpeak.
const TestPhrase = "语音告警测试，系统运行正常"

var faultLabels = map[string]string{
	lookout.FaultBlackScreen:     "黑屏",
	lookout.FaultFrozen:          "冻屏",
	lookout.FaultSilent:          "静音",
	lookout.FaultClipping:        "爆音",
	lookout.FaultCCError:         "CC错误",
	lookout.FaultPCRJitter:       "PCR抖动",
	lookout.FaultBitrateAbnormal: "码率异常",
	lookout.FaultOffline:         "离线",
	lookout.FaultMosaic:          "花屏",
	lookout.FaultAudioStutter:    "音频卡顿",
}

// kebab-case spellings that don't map onto the wire name by case folding alone
var faultAliases = map[string]string{
	"JITTER": lookout.FaultPCRJitter,
}

// FaultLabel returns the spoken label for a fault type. Both the wire form
// (BLACK_SCREEN) and the kebab form (black-screen) are recognised; anything
// else is returned unchanged.
func FaultLabel(faultType string) string {
	if label, ok := faultLabels[faultType]; ok {
		return label
	}
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(faultType), "-", "_"))
	if alias, ok := faultAliases[norm]; ok {
		norm = alias
	}
	if label, ok := faultLabels[norm]; ok {
		return label
	}
	return faultType
}

func individualText(ev FaultEvent) string {
	return fmt.Sprintf("%s发生%s告警", ev.DisplayName(), FaultLabel(ev.FaultType))
}

func aggregateText(count int) string {
	return fmt.Sprintf("警告：%d路节目同时异常，上游网络疑似中断，请立即检查", count)
}
