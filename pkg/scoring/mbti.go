package scoring

import (
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

const mbtiItems = 70

type dichotomy struct {
	first  byte
	second byte
	items  []int // 0-based item positions
}

// Partitions are not equal in size: E-I has 10 items, the others 20.
var mbtiDichotomies = []dichotomy{
	{'E', 'I', []int{0, 7, 14, 21, 28, 35, 42, 49, 56, 63}},
	{'S', 'N', []int{1, 8, 15, 22, 29, 36, 43, 50, 57, 64, 2, 9, 16, 23, 30, 37, 44, 51, 58, 65}},
	{'T', 'F', []int{3, 10, 17, 24, 31, 38, 45, 52, 59, 66, 4, 11, 18, 25, 32, 39, 46, 53, 60, 67}},
	{'J', 'P', []int{5, 12, 19, 26, 33, 40, 47, 54, 61, 68, 6, 13, 20, 27, 34, 41, 48, 55, 62, 69}},
}

// ScoreMBTI scores a 70-item forced-choice inventory where 0 selects the
// first pole and 1 the second. A pole wins only with a strict majority of
// its partition; an even split yields the second letter.
func ScoreMBTI(responses []int) (*models.MBTIScores, error) {
	if err := validate(models.CategoryMBTI, responses, mbtiItems, 0, 1); err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, d := range mbtiDichotomies {
		zeros := 0
		for _, i := range d.items {
			if responses[i] == 0 {
				zeros++
			}
		}
		if zeros*2 > len(d.items) {
			b.WriteByte(d.first)
		} else {
			b.WriteByte(d.second)
		}
	}

	return &models.MBTIScores{Type: b.String()}, nil
}

// MBTITypes lists all sixteen types
func MBTITypes() []string {
	types := []string{""}
	for _, d := range mbtiDichotomies {
		next := make([]string, 0, len(types)*2)
		for _, prefix := range types {
			next = append(next, prefix+string(d.first), prefix+string(d.second))
		}
		types = next
	}
	return types
}
