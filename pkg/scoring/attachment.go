package scoring

import "github.com/Ramsey-B/clover/pkg/models"

const attachmentItems = 20

var attachmentKey = []struct {
	style string
	items []int // 1-based
}{
	{"Secure", []int{1, 2, 3, 4, 5}},
	{"Anxious-Preoccupied", []int{6, 7, 8, 9, 10}},
	{"Dismissive-Avoidant", []int{11, 12, 13, 14, 15}},
	{"Fearful-Avoidant", []int{16, 17, 18, 19, 20}},
}

// AttachmentStyles lists the four style names in key order
func AttachmentStyles() []string {
	names := make([]string, len(attachmentKey))
	for i, k := range attachmentKey {
		names[i] = k.style
	}
	return names
}

// ScoreAttachment sums the five items of each attachment style
func ScoreAttachment(responses []int) (*models.AttachmentScores, error) {
	if err := validate(models.CategoryAttachment, responses, attachmentItems, 1, 5); err != nil {
		return nil, err
	}

	scores := &models.AttachmentScores{Styles: make(map[string]int, len(attachmentKey))}
	for _, k := range attachmentKey {
		sum := 0
		for _, item := range k.items {
			sum += responses[item-1]
		}
		scores.Styles[k.style] = sum
	}

	return scores, nil
}
