package pdf

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-rod/rod"
	redis "github.com/redis/go-redis/v9"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"github.com/smallbiznis/invoicely/internal/invoice/render"
	"github.com/smallbiznis/invoicely/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func sampleInvoice() *invoicedomain.Invoice {
	items := []invoicedomain.LineItem{
		{Description: "Website redesign", Quantity: 1, UnitPrice: 120000},
		{Description: "Hosting", Quantity: 12, UnitPrice: 1500},
	}
	totals := invoicedomain.ComputeTotals(items, 10)
	due := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	return &invoicedomain.Invoice{
		ID:            7,
		UserID:        42,
		InvoiceNumber: "INV-0001",
		Status:        invoicedomain.StatusSent,
		Currency:      "EUR",
		IssueDate:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		DueDate:       &due,
		Company:       datatypes.NewJSONType(invoicedomain.Company{Name: "Acme Studio", Email: "billing@acme.test"}),
		Client:        datatypes.NewJSONType(invoicedomain.Client{Name: "Globex Corp", Address: "1 Main St"}),
		Items:         datatypes.NewJSONType(items),
		TaxRate:       10,
		Subtotal:      totals.Subtotal,
		TaxAmount:     totals.TaxAmount,
		Total:         totals.Total,
		Notes:         "Thanks for your business",
	}
}

type stubRenderer struct {
	name  string
	err   error
	calls int
	last  Document
}

func (s *stubRenderer) Name() string { return s.name }

func (s *stubRenderer) Render(_ context.Context, doc Document) ([]byte, error) {
	s.calls++
	s.last = doc
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF-stub-" + s.name), nil
}

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "inv-0001-globex-corp.pdf", FileName(sampleInvoice()))
	assert.Equal(t, "invoice.pdf", FileName(&invoicedomain.Invoice{}))
	assert.Equal(t, "invoice.pdf", FileName(nil))
}

func TestMarotoRendersPDF(t *testing.T) {
	doc := Document{Input: render.BuildInput(sampleInvoice())}
	doc.Input.Template.PrimaryColor = "#2563eb"

	out, err := NewMarotoRenderer().Render(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestParseHexColor(t *testing.T) {
	c := parseHexColor("#2563eb")
	assert.Equal(t, 0x25, c.Red)
	assert.Equal(t, 0x63, c.Green)
	assert.Equal(t, 0xeb, c.Blue)

	c = parseHexColor("fff")
	assert.Equal(t, 255, c.Red)

	c = parseHexColor("nope")
	assert.Equal(t, 17, c.Red)
}

func TestGeneratorUsesPrimaryWithHTML(t *testing.T) {
	primary := &stubRenderer{name: "chromium"}
	fallback := &stubRenderer{name: "maroto"}
	g := NewGenerator(GeneratorParams{Log: zap.NewNop(), HTML: render.NewRenderer(), Primary: primary, Fallback: fallback})

	out, name, err := g.RenderInvoice(context.Background(), sampleInvoice())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-stub-chromium", string(out))
	assert.Equal(t, "inv-0001-globex-corp.pdf", name)
	assert.Contains(t, primary.last.HTML, "INV-0001")
	assert.Zero(t, fallback.calls)
}

func TestGeneratorFallsBack(t *testing.T) {
	primary := &stubRenderer{name: "chromium", err: errors.New("chrome not found")}
	fallback := &stubRenderer{name: "maroto"}
	g := NewGenerator(GeneratorParams{Log: zap.NewNop(), HTML: render.NewRenderer(), Primary: primary, Fallback: fallback})

	out, _, err := g.RenderInvoice(context.Background(), sampleInvoice())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-stub-maroto", string(out))
	assert.Equal(t, 1, primary.calls)

	fallback.err = errors.New("boom")
	_, _, err = g.RenderInvoice(context.Background(), sampleInvoice())
	assert.ErrorIs(t, err, ErrRenderFailed)
}

func TestGeneratorArchivesBestEffort(t *testing.T) {
	putter := &fakePutter{}
	g := NewGenerator(GeneratorParams{
		Log:      zap.NewNop(),
		Fallback: &stubRenderer{name: "maroto"},
		Archiver: newArchiver(putter, "invoices-bucket", zap.NewNop()),
	})

	out, _, err := g.RenderInvoice(context.Background(), sampleInvoice())
	require.NoError(t, err)
	require.Len(t, putter.inputs, 1)
	assert.Equal(t, "invoices-bucket", *putter.inputs[0].Bucket)
	assert.Equal(t, "invoices/42/inv-0001-globex-corp.pdf", *putter.inputs[0].Key)
	assert.Equal(t, "application/pdf", *putter.inputs[0].ContentType)
	assert.Equal(t, out, putter.bodies[0])

	putter.err = errors.New("access denied")
	_, _, err = g.RenderInvoice(context.Background(), sampleInvoice())
	assert.NoError(t, err)
}

func TestGeneratorWaitsForRenderLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := ratelimit.NewLocker(client)

	g := NewGenerator(GeneratorParams{Log: zap.NewNop(), Fallback: &stubRenderer{name: "maroto"}, Locker: locker})

	_, _, err := g.RenderInvoice(context.Background(), sampleInvoice())
	require.NoError(t, err)
	assert.False(t, mr.Exists("pdf:render:7"))

	_, err = locker.TryAcquire(context.Background(), "pdf:render:7", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, _, err = g.RenderInvoice(ctx, sampleInvoice())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChromiumRejectsEmptyHTML(t *testing.T) {
	r := NewChromiumRenderer("", 1, zap.NewNop())
	_, err := r.Render(context.Background(), Document{})
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

type fakeProcess struct {
	killed bool
}

func (p *fakeProcess) Launch() (string, error) { return "ws://127.0.0.1:9222/devtools", nil }
func (p *fakeProcess) Kill() { p.killed = true }

func TestChromiumKillsProcessWhenConnectFails(t *testing.T) {
	process := &fakeProcess{}
	r := NewChromiumRenderer("", 1, zap.NewNop())
	r.newProcess = func(string) browserProcess { return process }
	r.dial = func(string) (*rod.Browser, error) { return nil, errors.New("connection refused") }

	_, err := r.Render(context.Background(), Document{HTML: "<p>hi</p>"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to headless browser")
	assert.True(t, process.killed)
	assert.Nil(t, r.browser)
}
