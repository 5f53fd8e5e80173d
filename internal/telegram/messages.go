package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"tg_shop_bot/internal/domain"
)

const (
	msgPermissionDenied = "⛔ Anda tidak memiliki izin untuk menggunakan perintah ini."
	msgUnknownCommand   = "❌ Perintah tidak dikenali. Ketik /menu untuk bantuan."
	msgFallback         = "Halo! Saya tidak mengerti pesan Anda. Silakan gunakan /menu untuk melihat daftar perintah."
	msgProductNotFound  = "Produk tidak ditemukan."
	msgProofReceived    = "✅ Bukti pembayaran diterima. Admin akan segera mereviewnya."
	msgPurchaseApproved = "Pembelian telah disetujui."
	msgPurchaseRejected = "Pembelian telah ditolak."
	msgPurchaseDeclined = "Maaf, pembayaran Anda ditolak."
	msgAlreadyProcessed = "ℹ️ Pembelian ini sudah diproses sebelumnya."
	msgPurchaseNotFound = "Pembelian tidak ditemukan."
	msgConfessSent      = "✅ Pesan confess Anda telah dikirim ke admin untuk direview!"
	msgMenfessSent      = "✅ Menfess Anda telah dikirim ke admin untuk direview!"
	msgConfessEmpty     = "Gunakan: `/confess Pesan rahasia Anda`"
	msgMenfessUsage     = "Gunakan: `/menfess @username Pesan Anda`"
	msgConfessProcessed = "ℹ️ Confess ini sudah diproses sebelumnya."
	msgAddProductUsage  = "Format salah. Gunakan:\n`/addproduct Judul; Deskripsi; Harga; URL Gambar; URL File ZIP`"
	msgBroadcastEmpty   = "Gunakan: `/board Pesan broadcast`"
	msgConfigSaved      = "✅ Konfigurasi berhasil disimpan. Bot diinisialisasi ulang."
	msgReinitFailed     = "⚠️ Konfigurasi disimpan, tetapi bot gagal diinisialisasi ulang. Periksa token dan coba lagi."
	msgNoProducts       = "Belum ada produk yang tersedia."
	msgTemporaryFailure = "⚠️ Terjadi kesalahan. Silakan coba lagi nanti."

	msgConfessInfo = "📝 *Cara Menggunakan /confess:*\nKirim pesan dengan format:\n`/confess Pesan rahasia Anda di sini.`\nPesan akan dikirim secara anonim ke admin."
	msgMenfessInfo = "💌 *Cara Menggunakan /menfess:*\nKirim pesan dengan format:\n`/menfess @username Pesan Anda di sini.`\nPesan akan direview admin lalu diteruskan tanpa nama pengirim."

	offerPrefix    = "Anda akan membeli"
	recentUserSize = 10
	productPage    = 10
)

func startText(cfg domain.AdminConfig) string {
	return fmt.Sprintf("*%s*\n\n%s\n\nSelamat datang! Gunakan /menu untuk melihat semua fitur yang tersedia.",
		escapeMarkdown(botName(cfg)), cfg.BotDescription)
}

func menuText(cfg domain.AdminConfig) string {
	return fmt.Sprintf("📜 *Menu Utama - %s*\n\nPilih fitur yang ingin Anda gunakan:", escapeMarkdown(botName(cfg)))
}

func menuKeyboard(cfg domain.AdminConfig) [][]Button {
	rows := [][]Button{
		{{Text: "💬 Confess (Anonymous)", Data: string(actionConfessInfo)}},
		{{Text: "💌 Menfess (Ke Username)", Data: string(actionMenfessInfo)}},
		{{Text: "📦 Lihat Produk", Data: string(actionProductsList)}},
	}
	if cfg.AdminUsername != "" {
		rows = append(rows, []Button{{Text: "📞 Hubungi Admin", URL: "https://t.me/" + cfg.AdminUsername}})
	}
	return rows
}

// offerText is the purchase offer the buyer replies to with a screenshot. The
// purchase id line lets the proof step address the exact record.
func offerText(product domain.Product, purchaseID string) string {
	return fmt.Sprintf("%s *%s* seharga *Rp %s*.\n\nSilakan lakukan pembayaran dan balas (reply) pesan ini dengan mengirimkan screenshot bukti pembayaran.\n\nID Pesanan: `%s`",
		offerPrefix, escapeMarkdown(product.Title), formatRupiah(product.Price), purchaseID)
}

func proofNotice(sender Sender, chatID int64, title string) string {
	return fmt.Sprintf("💰 *Konfirmasi Pembelian*\n\nDari: @%s (ID: `%d`)\nProduk: *%s*\n\nUser telah mengirim bukti pembayaran.",
		escapeMarkdown(sender.Handle()), chatID, escapeMarkdown(title))
}

func proofKeyboard(purchaseID string) [][]Button {
	return [][]Button{
		{{Text: "✅ Setujui Pembelian", Data: callbackData(actionAccPurchase, purchaseID)}},
		{{Text: "❌ Tolak Pembelian", Data: callbackData(actionRejPurchase, purchaseID)}},
	}
}

func deliveryText(product domain.Product) string {
	link := product.FileURL
	if link == "" {
		link = "Admin akan mengirimkan produk Anda secara langsung."
	}
	return fmt.Sprintf("🎉 Pembelian Anda telah disetujui!\n\nBerikut link download produk Anda:\n%s", link)
}

func confessNotice(c domain.Confess) string {
	if c.IsMenfess() {
		return fmt.Sprintf("💌 *Menfess Baru Diterima*\n\nUntuk: @%s\n\n%s", escapeMarkdown(c.TargetUsername), escapeMarkdown(c.Message))
	}
	return fmt.Sprintf("💌 *Confess Baru Diterima*\n\n%s", escapeMarkdown(c.Message))
}

func confessKeyboard(id string) [][]Button {
	return [][]Button{
		{{Text: "✅ Setujui", Data: callbackData(actionAccConfess, id)}},
		{{Text: "❌ Tolak", Data: callbackData(actionRejConfess, id)}},
	}
}

func confessResolvedText(id, status string) string {
	if status == domain.StatusApproved {
		return fmt.Sprintf("Confess ID `%s` disetujui.", id)
	}
	return fmt.Sprintf("Confess ID `%s` ditolak.", id)
}

func menfessRelayText(c domain.Confess) string {
	return fmt.Sprintf("💌 *Kamu menerima menfess!*\n\n%s", escapeMarkdown(c.Message))
}

func menfessOutcomeText(c domain.Confess, delivered bool) string {
	switch {
	case c.Status == domain.StatusRejected:
		return fmt.Sprintf("Maaf, menfess Anda untuk @%s ditolak admin.", c.TargetUsername)
	case delivered:
		return fmt.Sprintf("✅ Menfess Anda untuk @%s telah disetujui dan diteruskan.", c.TargetUsername)
	default:
		return fmt.Sprintf("Menfess Anda untuk @%s disetujui, tetapi penerima belum pernah memulai bot sehingga pesan tidak dapat diteruskan.", c.TargetUsername)
	}
}

func broadcastStartText(total int) string {
	return fmt.Sprintf("🚀 Memulai broadcast ke %d pengguna...", total)
}

func broadcastBody(cfg domain.AdminConfig, body string) string {
	return fmt.Sprintf("*Diteruskan dari %s*\n\n%s", escapeMarkdown(botName(cfg)), body)
}

func broadcastDoneText(sent, total int) string {
	return fmt.Sprintf("✅ Broadcast selesai. Terkirim ke %d/%d pengguna.", sent, total)
}

func productAddedText(p domain.Product) string {
	return fmt.Sprintf("✅ Produk *%s* berhasil ditambahkan!", escapeMarkdown(p.Title))
}

func usersText(users []domain.User, total int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👥 *%d Pengguna Terakhir Aktif:*\n\n", recentUserSize)
	for _, u := range users {
		fmt.Fprintf(&b, "• `%s` (ID: `%d`)\n", u.DisplayName(), u.UserID)
	}
	fmt.Fprintf(&b, "\nTotal pengguna: %d", total)
	return b.String()
}

func productsText(products []domain.Product) string {
	var b strings.Builder
	b.WriteString("📦 *Daftar Produk:*\n")
	for _, p := range products {
		fmt.Fprintf(&b, "\n• *%s* - Rp %s", escapeMarkdown(p.Title), formatRupiah(p.Price))
	}
	return b.String()
}

func productsKeyboard(products []domain.Product) [][]Button {
	rows := make([][]Button, 0, len(products))
	for _, p := range products {
		rows = append(rows, []Button{{Text: "🛒 Beli " + p.Title, Data: callbackData(actionBuyProduct, p.ID)}})
	}
	return rows
}

func setConfigUsage(name string) string {
	return fmt.Sprintf("Gunakan: `/%s [nilai_baru]`", name)
}

func botName(cfg domain.AdminConfig) string {
	if cfg.BotName == "" {
		return domain.DefaultBotName
	}
	return cfg.BotName
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escapeMarkdown escapes the Markdown (v1) control characters in user content.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// formatRupiah groups thousands with dots, e.g. 150000 -> "150.000".
func formatRupiah(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}
