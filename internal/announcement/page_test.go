package announcement

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schedulePage = `<html><body>
<div class="header"><p>Навігація сайту та інші посилання</p></div>
<div class="content-main">
  <h3>Графік погодинних відключень</h3>
  <p>Шановні споживачі, звертаємо увагу на зміни.</p>
  <ul><li>підчерга 1.1 – з 08:00 до 10:00;</li></ul>
  <p>коротко</p>
  <p><img src="/file/gpv.png" alt="ГПВ-15.10.26"></p>
  <p>Текст після зображення не враховується.</p>
</div>
</body></html>`

func TestExtractParagraphs(t *testing.T) {
	got, err := ExtractParagraphs(strings.NewReader(schedulePage), "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Графік погодинних відключень",
		"Шановні споживачі, звертаємо увагу на зміни.",
		"підчерга 1.1 – з 08:00 до 10:00;",
	}, got)
}

func TestExtractParagraphsFallsBackToBody(t *testing.T) {
	got, err := ExtractParagraphs(strings.NewReader(schedulePage), "div.missing")
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "Навігація сайту та інші посилання", got[0])
}

func TestNewParagraphs(t *testing.T) {
	prev := []string{"a paragraph", "b paragraph"}
	cur := []string{"b paragraph", "c paragraph", "a paragraph", "d paragraph"}
	assert.Equal(t, []string{"c paragraph", "d paragraph"}, NewParagraphs(prev, cur))
	assert.Empty(t, NewParagraphs(cur, cur))
}

func TestNotices(t *testing.T) {
	prev := []string{
		"Графік погодинних відключень",
		"Старий абзац про щось важливе",
	}
	cur := []string{
		"UPD 15.10: Збільшення обсягу відключень",
		"Відповідно:",
		"підчерга 3.1 – з 10:00 до 12:00;",
		"Старий абзац про щось важливе",
		"Інший новий абзац без маркерів",
	}

	got := Notices(prev, cur)
	require.Len(t, got, 1)
	assert.Equal(t, "UPD 15.10: Збільшення обсягу відключень", got[0].Title)
	assert.Equal(t, strings.Join(cur[:3], "\n"), got[0].Body)
	assert.Len(t, got[0].Hash, 32)

	assert.Empty(t, Notices(cur, cur), "nothing new, nothing to announce")
}

func TestNewText(t *testing.T) {
	prev := []string{
		"підчерга 2.1 – з 08:00 до 10:00;",
		"Старий абзац про щось важливе",
	}
	cur := []string{
		"UPD: Розпорядженням НЕК застосовуватиметься графік",
		"підчерга 2.1 – з 08:00 до 10:00;",
		"Старий абзац про щось важливе",
		"Інший новий абзац без маркерів",
	}

	assert.Equal(t, strings.Join([]string{cur[0], cur[1], cur[3]}, "\n"), NewText(prev, cur),
		"old queue lines pulled into a notice are kept, other old paragraphs are not")
	assert.Empty(t, NewText(cur, cur))
}
