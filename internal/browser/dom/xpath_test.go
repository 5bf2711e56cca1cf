package dom_test

import (
	"context"
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
)

const listingHTML = `
	<html>
	<head><title>期末問卷</title></head>
	<body>
		<div id="header">
			<h1>Welcome</h1>
		</div>
		<table class="table">
			<tr><td>計算機概論</td><td><button class="btn btn-info">填寫問卷(Start)</button></td></tr>
			<tr><td>線性代數</td><td><button class="btn btn-info">填寫問卷(Start)</button></td></tr>
		</table>
		<div class="content"><p>P1</p><p>P2</p></div>
	</body>
	</html>
	`

func TestUniqueXPath(t *testing.T) {
	doc, err := htmlquery.Parse(strings.NewReader(listingHTML))
	require.NoError(t, err)

	tests := []struct {
		name          string
		targetXPath   string
		expectedXPath string
	}{
		{"Body", "//body", "/html[1]/body[1]"},
		{"Element with ID", "//div[@id='header']", `//*[@id='header']`},
		{"Child of ID element", "//h1", `//*[@id='header']/h1[1]`},
		{"Second paragraph", "(//p)[2]", "/html[1]/body[1]/div[2]/p[2]"},
		{"Second row button", "(//button)[2]", "/html[1]/body[1]/table[1]/tbody[1]/tr[2]/td[2]/button[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := htmlquery.FindOne(doc, tt.targetXPath)
			require.NotNil(t, target, "fixture error: nothing matches %s", tt.targetXPath)

			generated := dom.UniqueXPath(target)
			assert.Equal(t, tt.expectedXPath, generated)
			assert.Equal(t, target, htmlquery.FindOne(doc, generated), "generated xpath must select the original node")
		})
	}
}

func TestXPathOf(t *testing.T) {
	ctx := context.Background()
	page, err := dom.NewStaticPage("https://ceq.example/StuFillIn", listingHTML)
	require.NoError(t, err)

	buttons, err := page.Find(ctx, dom.CSS("button.btn-info"))
	require.NoError(t, err)
	require.Len(t, buttons, 2)

	xp := dom.XPathOf(buttons[1])
	found, err := page.Find(ctx, dom.XPath(xp))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, buttons[1].Ref(), found[0].Ref())
}
