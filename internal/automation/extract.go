package automation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// extractCurrentPage 把当前结果页解析为零或多条Listing。
// 卡片级尽力而为：单张畸形卡片记日志后跳过，绝不让整页提取失败
func (s *Session) extractCurrentPage(ctx context.Context) []Listing {
	cardSel := s.catalog.MustGet(SelJobCard)
	count, err := s.page.Count(ctx, cardSel)
	if err != nil {
		s.counters.Errors++
		s.logger.Warn().Err(err).Msg("统计职位卡片失败，当前页按空页处理")
		return nil
	}

	listings := make([]Listing, 0, count)
	for i := 1; i <= count; i++ {
		var listing Listing
		err := s.withRetry(ctx, fmt.Sprintf("extract_card_%d", i), func() error {
			var cardErr error
			listing, cardErr = s.extractCard(ctx, i)
			return cardErr
		})
		if err != nil {
			s.counters.Errors++
			s.logger.Warn().
				Int("card_index", i).
				Err(NewExtractionError(s.id, err.Error())).
				Msg("职位卡片提取失败，跳过该卡片")
			continue
		}
		listings = append(listings, listing)
	}
	return listings
}

// extractCard 提取第i张卡片(1起)。标题和身份标识缺失视为畸形卡片
func (s *Session) extractCard(ctx context.Context, i int) (Listing, error) {
	card := s.catalog.MustGet(SelJobCard).Nth(i)
	now := time.Now()

	title, err := s.page.Text(ctx, card.Within(s.catalog.MustGet(SelJobCardTitle)))
	if err != nil {
		return Listing{}, fmt.Errorf("读取标题失败: %w", err)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Listing{}, fmt.Errorf("卡片无标题")
	}

	linkSel := card.Within(s.catalog.MustGet(SelJobCardLink))
	href, hasHref, err := s.page.Attr(ctx, linkSel, "href")
	if err != nil || !hasHref || href == "" {
		return Listing{}, fmt.Errorf("卡片无职位链接")
	}
	canonical := s.canonicalURL(href)

	// 站点ID优先取data属性，退回从URL提取
	sourceID, hasID, _ := s.page.Attr(ctx, card, "data-job-id")
	if !hasID || sourceID == "" {
		sourceID = sourceIDFromURL(canonical)
	}
	if sourceID == "" {
		return Listing{}, fmt.Errorf("无法确定职位的站点ID")
	}

	listing := Listing{
		SourceID:      sourceID,
		URL:           canonical,
		Title:         title,
		ScrapedAt:     now,
		LastUpdatedAt: now,
	}

	// 其余字段可选，缺失不算畸形
	if company, err := s.page.Text(ctx, card.Within(s.catalog.MustGet(SelJobCardCompany))); err == nil {
		listing.Company = strings.TrimSpace(company)
	}
	if location, err := s.page.Text(ctx, card.Within(s.catalog.MustGet(SelJobCardLocation))); err == nil {
		listing.Location = strings.TrimSpace(location)
	}
	if salaryText, err := s.page.Text(ctx, card.Within(s.catalog.MustGet(SelJobCardSalary))); err == nil {
		listing.SalaryMin, listing.SalaryMax, listing.SalaryCurrency = parseSalaryRange(salaryText)
	}
	if mode, err := s.page.Text(ctx, card.Within(s.catalog.MustGet(SelJobCardWorkMode))); err == nil {
		listing.WorkArrangement = normalizeWorkArrangement(mode)
		listing.RemoteType = remoteTypeFromArrangement(listing.WorkArrangement)
	}

	// 申请入口解析到第三方站点时才填外链，站内申请永远留空
	extSel := card.Within(s.catalog.MustGet(SelExternalApplyLink))
	if extHref, hasExt, err := s.page.Attr(ctx, extSel, "href"); err == nil && hasExt && extHref != "" {
		listing.ExternalApplicationURL = extHref
	}

	return listing, nil
}

// canonicalURL 相对链接补全为绝对地址并去掉跟踪参数
func (s *Session) canonicalURL(href string) string {
	full := href
	if strings.HasPrefix(href, "/") {
		full = s.site.BaseURL + href
	}
	if idx := strings.IndexByte(full, '?'); idx > 0 {
		full = full[:idx]
	}
	return full
}

var jobIDPattern = regexp.MustCompile(`/(?:jobs?|view)/(?:[a-z0-9-]*-)?(\d+)`)

// sourceIDFromURL 从规范化URL中提取站点分配的职位ID
func sourceIDFromURL(u string) string {
	m := jobIDPattern.FindStringSubmatch(u)
	if len(m) == 2 {
		return m[1]
	}
	// 无数字ID的版式退回最后一个路径段
	trimmed := strings.TrimRight(u, "/")
	if idx := strings.LastIndexByte(trimmed, '/'); idx >= 0 && idx < len(trimmed)-1 {
		return trimmed[idx+1:]
	}
	return ""
}

var salaryPattern = regexp.MustCompile(`([$€£])?\s*([\d,]+)(?:k|K)?`)

// parseSalaryRange 解析诸如 "$80,000 - $100,000" / "€60K–€80K" 的薪资文本。
// 解析不出来就全部留零，薪资缺失很常见
func parseSalaryRange(text string) (minSalary, maxSalary int, currency string) {
	matches := salaryPattern.FindAllStringSubmatch(text, 2)
	if len(matches) == 0 {
		return 0, 0, ""
	}

	values := make([]int, 0, 2)
	for _, m := range matches {
		if m[1] != "" && currency == "" {
			currency = currencyCode(m[1])
		}
		raw := strings.ReplaceAll(m[2], ",", "")
		v, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		// "80K"写法
		if strings.Contains(strings.ToLower(text), strings.ToLower(m[2])+"k") && v < 1000 {
			v *= 1000
		}
		values = append(values, v)
	}

	switch len(values) {
	case 0:
		return 0, 0, ""
	case 1:
		return values[0], values[0], currency
	default:
		return values[0], values[1], currency
	}
}

func currencyCode(symbol string) string {
	switch symbol {
	case "$":
		return "USD"
	case "€":
		return "EUR"
	case "£":
		return "GBP"
	}
	return ""
}

// normalizeWorkArrangement 工作安排标签规范化为 On-site / Remote / Hybrid，识别不出返回空
func normalizeWorkArrangement(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on-site", "onsite", "on site", "in office", "in-office":
		return "On-site"
	case "remote", "fully remote":
		return "Remote"
	case "hybrid":
		return "Hybrid"
	}
	return ""
}

func remoteTypeFromArrangement(arrangement string) RemoteType {
	switch arrangement {
	case "Remote":
		return RemoteFull
	case "Hybrid":
		return RemotePartial
	case "On-site":
		return RemoteNone
	}
	return RemoteUnknown
}
