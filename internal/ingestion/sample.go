package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/kaziNymul/carevoice-go/internal/docstore"
	"github.com/kaziNymul/carevoice-go/internal/logging"
)

// sampleDoc is one built-in FAQ entry used to seed a fresh knowledge base.
type sampleDoc struct {
	id      string
	source  string
	product string
	text    string
}

var sampleDocs = []sampleDoc{
	{
		id:      "sample_password_reset",
		source:  "password_reset_faq.txt",
		product: "account_management",
		text: `How do I reset my password?

To reset your password, follow these steps:
1. Go to the login page
2. Click on 'Forgot Password'
3. Enter your email address
4. Check your email for a reset link
5. Click the link and create a new password

The reset link expires after 24 hours for security reasons. If you don't receive the email within 5 minutes, check your spam folder.`,
	},
	{
		id:      "sample_business_hours",
		source:  "business_hours_faq.txt",
		product: "general",
		text: `What are your business hours?

Our customer support team is available:
- Monday to Friday: 9:00 AM - 6:00 PM EST
- Saturday: 10:00 AM - 4:00 PM EST
- Sunday: Closed

For urgent issues outside business hours, you can use our AI chat support available 24/7 on our website.`,
	},
	{
		id:      "sample_order_tracking",
		source:  "order_tracking_faq.txt",
		product: "orders",
		text: `How can I track my order?

To track your order:
1. Log in to your account
2. Go to 'My Orders' section
3. Click on the order number you want to track
4. You'll see real-time tracking information

You will also receive tracking updates by email once your order ships. Standard delivery takes 3-5 business days.`,
	},
}

// IngestSamples indexes the built-in sample FAQ entries. Useful for trying
// the system end-to-end before any real documentation exists.
func (p *Pipeline) IngestSamples(ctx context.Context) (FileResult, error) {
	texts := make([]string, len(sampleDocs))
	for i, d := range sampleDocs {
		texts[i] = d.text
	}

	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return FileResult{Errors: len(texts)}, fmt.Errorf("ingestion: embedding samples failed: %w", err)
	}
	if len(embeddings) != len(texts) {
		return FileResult{Errors: len(texts)}, fmt.Errorf("ingestion: expected %d sample embeddings, got %d", len(texts), len(embeddings))
	}

	createdAt := time.Now().UTC().Format(time.RFC3339)
	docs := make([]docstore.Document, 0, len(sampleDocs))
	for i, d := range sampleDocs {
		docs = append(docs, docstore.Document{
			ID: d.id,
			Payload: map[string]any{
				"text": d.text,
				"metadata": map[string]any{
					"source":     d.source,
					"doc_type":   "faq",
					"product":    d.product,
					"language":   "en",
					"created_at": createdAt,
				},
			},
			Vectors: map[string][]float32{docstore.DefaultVectorField: embeddings[i]},
		})
	}

	res, err := p.store.BulkIndex(ctx, p.index, docs)
	if err != nil {
		return FileResult{Errors: len(docs)}, fmt.Errorf("ingestion: sample bulk index failed: %w", err)
	}

	logging.FromContext(ctx).Info("sample data ingested", "indexed", res.Indexed, "failed", res.Failed)
	return FileResult{Chunks: res.Indexed, Errors: res.Failed}, nil
}
