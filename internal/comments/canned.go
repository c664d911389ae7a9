package comments

import (
	"context"
	"strings"

	"github.com/livestudio/studio/internal/feed"
)

var cannedPool = []string{
	"666", "哈哈哈", "主播好厉害👍", "来了来了", "这是什么操作😂", "支持支持", "爱了爱了❤️",
	"前排围观", "太真实了", "主播今天好精神✨", "学到了", "再来一次！", "笑死🤣", "冲冲冲🔥",
}

// Canned produces comments offline from a fixed pool. It is used when no API key is set.
type Canned struct {
	rand feed.Rand
}

// NewCanned creates an offline source. A nil rand uses feed.SystemRand.
func NewCanned(r feed.Rand) *Canned {
	if r == nil {
		r = feed.SystemRand
	}
	return &Canned{rand: r}
}

// Generate returns 5 to 8 lines. Greetings and requests for likes get the expected replies.
func (c *Canned) Generate(ctx context.Context, prompt string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := 5 + c.rand.IntN(4)
	out := make([]string, 0, n)
	lower := strings.ToLower(prompt)
	if strings.Contains(prompt, "欢迎") || strings.Contains(lower, "hello") || strings.Contains(lower, "welcome") {
		out = append(out, "主播好")
	}
	if strings.Contains(prompt, "点赞") || strings.Contains(lower, "like") {
		out = append(out, "已赞")
	}
	for len(out) < n {
		out = append(out, cannedPool[c.rand.IntN(len(cannedPool))])
	}
	return out, nil
}
