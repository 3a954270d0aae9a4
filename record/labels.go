// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package record

import "fmt"

// Code to label tables collected from publicly charted Suica-family layouts.
// Unknown codes format as 不明 with the raw value so nothing is hidden.

// EquipmentTypes labels the terminal kind that wrote a record.
var EquipmentTypes = map[uint8]string{
	0x00: "未定義",
	0x03: "のりこし精算機",
	0x04: "携帯端末",
	0x05: "バス等車載機",
	0x07: "カード発売機",
	0x08: "自動券売機",
	0x09: "SMART ICOCA クイックチャージ機?",
	0x12: "自動券売機(東京モノレール)",
	0x14: "駅務機器(PASMO発行機?)",
	0x15: "定期券発売機",
	0x16: "自動改札機",
	0x17: "簡易改札機",
	0x18: "駅務機器(発行機?)",
	0x19: "窓口処理機(みどりの窓口)",
	0x1A: "窓口処理機(有人改札)",
	0x1B: "モバイルFeliCa",
	0x1C: "入場券券売機",
	0x1D: "他社乗換自動改札機",
	0x1F: "入金機",
	0x20: "発行機?(モノレール)",
	0x22: "簡易改札機(ことでん)",
	0x34: "カード発売機(せたまる?)",
	0x35: "バス等車載機(せたまる車内入金機?)",
	0x36: "バス等車載機(車内簡易改札機)",
	0x46: "ビューアルッテ端末",
	0xC7: "物販端末",
	0xC8: "物販端末",
}

// TransactionTypes labels history entry transaction kinds.
var TransactionTypes = map[uint8]string{
	0x00: "未定義",
	0x01: "自動改札機出場",
	0x02: "SFチャージ",
	0x03: "きっぷ購入",
	0x04: "磁気券精算",
	0x05: "乗越精算",
	0x06: "窓口出場",
	0x07: "新規",
	0x08: "控除",
	0x0D: "バス等均一運賃",
	0x0F: "バス等",
	0x11: "再発行?",
	0x13: "料金出場",
	0x14: "オートチャージ",
	0x1F: "バス等チャージ",
	0x46: "物販",
	0x48: "ポイントチャージ",
	0x4B: "入場・物販",
}

// PaymentTypes labels how a transaction was paid.
var PaymentTypes = map[uint8]string{
	0x00: "現金/なし",
	0x02: "VIEW",
	0x0B: "PiTaPa",
	0x0D: "オートチャージ対応PASMO",
	0x3F: "モバイルSuica(VIEW決済以外)",
}

// GateUsageTypes labels gate handling in history entries.
var GateUsageTypes = map[uint8]string{
	0x00: "未定義",
	0x01: "入場",
	0x02: "入場/出場",
	0x03: "定期入場/出場",
	0x04: "入場/定期出場",
	0x0E: "窓口出場",
	0x0F: "入場/出場(バス等)",
	0x12: "料金定期入場/料金出場",
	0x17: "入場/出場(乗継割引)",
	0x21: "入場/出場(バス等乗継割引)",
}

// GateInOutTypes labels gate log entry/exit kinds.
var GateInOutTypes = map[uint8]string{
	0x00: "精算出場",
	0x01: "精算出場(プリペイドカード併用?)",
	0x20: "出場",
	0x21: "駅務機器出場",
	0x22: "割引出場",
	0x24: "割引出場?",
	0x40: "定期出場",
	0x80: "均一区間入場?",
	0xA0: "入場",
	0xA2: "割引入場?",
	0xC0: "定期入場",
}

// IntermediateGateTypes labels intermediate gate handling in gate log and SF
// gate entries.
var IntermediateGateTypes = map[uint8]string{
	0x00: "未定義",
	0x04: "乗継割引?",
	0x08: "電車バス乗継割引?",
	0x40: "新幹線中間改札?",
}

// CardTypeLabels labels the card family nibble from the attribute block.
var CardTypeLabels = map[uint8]string{
	0: "せたまる/IruCa",
	2: "Suica/PiTaPa/TOICA/PASMO",
	3: "ICOCA",
}

func label(m map[uint8]string, code uint8, kind string) string {
	if s, ok := m[code]; ok {
		return s
	}
	return fmt.Sprintf("不明な%s (0x%02X)", kind, code)
}

// EquipmentTypeLabel returns the label for an equipment code.
func EquipmentTypeLabel(code uint8) string { return label(EquipmentTypes, code, "機器種別") }

// TransactionTypeLabel returns the label for a transaction type.
func TransactionTypeLabel(code uint8) string { return label(TransactionTypes, code, "取引種別") }

// PaymentTypeLabel returns the label for a payment type.
func PaymentTypeLabel(code uint8) string { return label(PaymentTypes, code, "支払種別") }

// GateUsageTypeLabel returns the label for a gate usage code.
func GateUsageTypeLabel(code uint8) string { return label(GateUsageTypes, code, "改札処理種別") }

// GateInOutTypeLabel returns the label for a gate in/out code.
func GateInOutTypeLabel(code uint8) string { return label(GateInOutTypes, code, "改札入出場種別") }

// IntermediateGateTypeLabel returns the label for an intermediate gate code.
func IntermediateGateTypeLabel(code uint8) string {
	return label(IntermediateGateTypes, code, "中間改札処理種別")
}

// CardTypeLabel returns the label for a card family code.
func CardTypeLabel(code uint8) string {
	if s, ok := CardTypeLabels[code]; ok {
		return s
	}
	return "不明"
}
