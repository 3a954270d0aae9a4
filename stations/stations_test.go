// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package stations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `地区コード(16進),線区コード(16進),駅順コード(16進),会社名,線区名,駅名,備考
0,25,09,東日本旅客鉄道,山手線,東京,
0,25,10,東日本旅客鉄道,山手線,神田,
1,e5,01,西日本旅客鉄道,大阪環状線,大阪,
`

func TestLoad(t *testing.T) {
	l, err := Load(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, 3, l.Len())

	st, ok := l.Resolve(0x25, 0x09)
	require.True(t, ok)
	assert.Equal(t, "東日本旅客鉄道", st.Company)
	assert.Equal(t, "山手線", st.Line)
	assert.Equal(t, "東京", st.Name)
	assert.Equal(t, uint8(0x00), st.AreaCode)

	st, ok = l.Resolve(0xE5, 0x01)
	require.True(t, ok)
	assert.Equal(t, "大阪", st.Name)
	assert.Equal(t, uint8(0x01), st.AreaCode)

	_, ok = l.Resolve(0x25, 0x42)
	assert.False(t, ok)
}

func TestLoadMissingColumn(t *testing.T) {
	_, err := Load(strings.NewReader("会社名,駅名\nJR,東京\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestLoadBadHex(t *testing.T) {
	csv := `地区コード(16進),線区コード(16進),駅順コード(16進),会社名,線区名,駅名,備考
0,zz,09,JR,山手線,東京,
`
	_, err := Load(strings.NewReader(csv))
	require.Error(t, err)
}

func TestFormat(t *testing.T) {
	l, err := Load(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, "東日本旅客鉄道 山手線 神田", l.Format(0x25, 0x10))

	// Unknown codes stay visible instead of being swallowed.
	assert.Equal(t, "不明 (線区コード: 0x25, 駅順コード: 0x42)", l.Format(0x25, 0x42))
}
