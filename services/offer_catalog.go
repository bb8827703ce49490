package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"microlending/models"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
)

// Offer описывает условия для одного типа кредита
type Offer struct {
	LoanType     models.LoanType           `json:"loan_type"`
	InterestRate decimal.Decimal           `json:"interest_rate"` // процент за период
	MinAmount    decimal.Decimal           `json:"min_amount"`
	MaxAmount    decimal.Decimal           `json:"max_amount"`
	MinTerm      int                       `json:"min_term"`
	MaxTerm      int                       `json:"max_term"`
	Frequencies  []models.PaymentFrequency `json:"frequencies"`
}

// AllowsFrequency сообщает, доступна ли периодичность для предложения
func (o Offer) AllowsFrequency(f models.PaymentFrequency) bool {
	for _, allowed := range o.Frequencies {
		if allowed == f {
			return true
		}
	}
	return false
}

// OfferCatalog хранит предложения по типам кредита
type OfferCatalog struct {
	offers map[models.LoanType]Offer
}

// defaultCatalogXML используется, если файл каталога не задан
const defaultCatalogXML = `<?xml version="1.0" encoding="UTF-8"?>
<catalog>
  <offer type="WithCollateral" rate="3">
    <amount min="5000" max="500000"/>
    <term min="1" max="36"/>
    <frequency>Weekly</frequency>
    <frequency>Bi-weekly</frequency>
    <frequency>Monthly</frequency>
    <frequency>Quarterly</frequency>
  </offer>
  <offer type="WithoutCollateral" rate="5">
    <amount min="1000" max="50000"/>
    <term min="1" max="12"/>
    <frequency>Weekly</frequency>
    <frequency>Bi-weekly</frequency>
    <frequency>Monthly</frequency>
  </offer>
  <offer type="OpenTerm" rate="6">
    <amount min="1000" max="30000"/>
    <term min="1" max="24"/>
    <frequency>Monthly</frequency>
    <frequency>Quarterly</frequency>
  </offer>
</catalog>
`

// DefaultOfferCatalog возвращает встроенный каталог
func DefaultOfferCatalog() *OfferCatalog {
	catalog, err := ParseOfferCatalog([]byte(defaultCatalogXML))
	if err != nil {
		panic(fmt.Sprintf("встроенный каталог предложений поврежден: %v", err))
	}
	return catalog
}

// LoadOfferCatalog читает каталог из XML-файла
func LoadOfferCatalog(path string) (*OfferCatalog, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("ошибка чтения каталога %s: %w", path, err)
	}
	return parseCatalogDocument(doc)
}

// ParseOfferCatalog разбирает каталог из XML
func ParseOfferCatalog(data []byte) (*OfferCatalog, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("ошибка разбора каталога: %w", err)
	}
	return parseCatalogDocument(doc)
}

func parseCatalogDocument(doc *etree.Document) (*OfferCatalog, error) {
	root := doc.SelectElement("catalog")
	if root == nil {
		return nil, fmt.Errorf("в каталоге нет элемента catalog")
	}

	catalog := &OfferCatalog{offers: make(map[models.LoanType]Offer)}
	for _, el := range root.SelectElements("offer") {
		offer, err := parseOffer(el)
		if err != nil {
			return nil, err
		}
		if _, dup := catalog.offers[offer.LoanType]; dup {
			return nil, fmt.Errorf("тип кредита %s указан в каталоге дважды", offer.LoanType)
		}
		catalog.offers[offer.LoanType] = offer
	}

	if len(catalog.offers) == 0 {
		return nil, fmt.Errorf("каталог не содержит предложений")
	}
	return catalog, nil
}

func parseOffer(el *etree.Element) (Offer, error) {
	offer := Offer{LoanType: models.LoanType(el.SelectAttrValue("type", ""))}
	switch offer.LoanType {
	case models.LoanTypeWithCollateral, models.LoanTypeWithoutCollateral, models.LoanTypeOpenTerm:
	default:
		return Offer{}, fmt.Errorf("неизвестный тип кредита %q", offer.LoanType)
	}

	var err error
	if offer.InterestRate, err = decimal.NewFromString(el.SelectAttrValue("rate", "")); err != nil {
		return Offer{}, fmt.Errorf("ставка для %s: %w", offer.LoanType, err)
	}
	if offer.InterestRate.IsNegative() {
		return Offer{}, fmt.Errorf("ставка для %s отрицательная", offer.LoanType)
	}

	amount := el.SelectElement("amount")
	if amount == nil {
		return Offer{}, fmt.Errorf("для %s не задан диапазон суммы", offer.LoanType)
	}
	if offer.MinAmount, err = decimal.NewFromString(amount.SelectAttrValue("min", "")); err != nil {
		return Offer{}, fmt.Errorf("минимальная сумма для %s: %w", offer.LoanType, err)
	}
	if offer.MaxAmount, err = decimal.NewFromString(amount.SelectAttrValue("max", "")); err != nil {
		return Offer{}, fmt.Errorf("максимальная сумма для %s: %w", offer.LoanType, err)
	}

	term := el.SelectElement("term")
	if term == nil {
		return Offer{}, fmt.Errorf("для %s не задан диапазон срока", offer.LoanType)
	}
	if offer.MinTerm, err = strconv.Atoi(term.SelectAttrValue("min", "")); err != nil {
		return Offer{}, fmt.Errorf("минимальный срок для %s: %w", offer.LoanType, err)
	}
	if offer.MaxTerm, err = strconv.Atoi(term.SelectAttrValue("max", "")); err != nil {
		return Offer{}, fmt.Errorf("максимальный срок для %s: %w", offer.LoanType, err)
	}
	if offer.MinTerm < 1 || offer.MaxTerm < offer.MinTerm {
		return Offer{}, fmt.Errorf("неверный диапазон срока для %s", offer.LoanType)
	}
	if !offer.MinAmount.IsPositive() || offer.MaxAmount.LessThan(offer.MinAmount) {
		return Offer{}, fmt.Errorf("неверный диапазон суммы для %s", offer.LoanType)
	}

	for _, f := range el.SelectElements("frequency") {
		freq := models.PaymentFrequency(strings.TrimSpace(f.Text()))
		if !ValidFrequency(freq) {
			return Offer{}, fmt.Errorf("неизвестная периодичность %q для %s", freq, offer.LoanType)
		}
		offer.Frequencies = append(offer.Frequencies, freq)
	}
	if len(offer.Frequencies) == 0 {
		return Offer{}, fmt.Errorf("для %s не задана периодичность", offer.LoanType)
	}

	return offer, nil
}

// Offer возвращает предложение для типа кредита
func (c *OfferCatalog) Offer(loanType models.LoanType) (Offer, bool) {
	offer, ok := c.offers[loanType]
	return offer, ok
}

// Offers возвращает все предложения, упорядоченные по типу
func (c *OfferCatalog) Offers() []Offer {
	result := make([]Offer, 0, len(c.offers))
	for _, o := range c.offers {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LoanType < result[j].LoanType })
	return result
}

// Check проверяет запрошенные условия по каталогу и возвращает предложение
func (c *OfferCatalog) Check(loanType models.LoanType, amount decimal.Decimal, term int, frequency models.PaymentFrequency) (Offer, error) {
	offer, ok := c.Offer(loanType)
	if !ok {
		return Offer{}, newValidationError(fmt.Sprintf("тип кредита %s не предлагается", loanType))
	}

	var messages []string
	if amount.LessThan(offer.MinAmount) || amount.GreaterThan(offer.MaxAmount) {
		messages = append(messages, fmt.Sprintf("сумма должна быть от %s до %s", offer.MinAmount.String(), offer.MaxAmount.String()))
	}
	if term < offer.MinTerm || term > offer.MaxTerm {
		messages = append(messages, fmt.Sprintf("срок должен быть от %d до %d периодов", offer.MinTerm, offer.MaxTerm))
	}
	if !offer.AllowsFrequency(frequency) {
		messages = append(messages, fmt.Sprintf("периодичность %s недоступна для %s", frequency, loanType))
	}
	if len(messages) > 0 {
		return Offer{}, newValidationError(messages...)
	}
	return offer, nil
}
