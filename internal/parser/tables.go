package parser

type service struct {
	Name     string
	Emoji    string
	Keywords []string
}

// services is scanned in order; the first entry with a matching keyword wins.
var services = []service{
	{"Telegram", "📩", []string{"telegram"}},
	{"WhatsApp", "🟢", []string{"whatsapp"}},
	{"Facebook", "📘", []string{"facebook", "fb-"}},
	{"Instagram", "📸", []string{"instagram"}},
	{"Google", "🔍", []string{"google", "gmail"}},
	{"Amazon", "🛒", []string{"amazon"}},
	{"Netflix", "🎬", []string{"netflix"}},
	{"Twitter", "🐦", []string{"twitter", "x.com"}},
	{"Snapchat", "👻", []string{"snapchat"}},
	{"TikTok", "🎵", []string{"tiktok"}},
	{"Discord", "💬", []string{"discord"}},
	{"PayPal", "💰", []string{"paypal"}},
	{"Binance", "🪙", []string{"binance"}},
	{"Uber", "🚗", []string{"uber"}},
	{"LinkedIn", "💼", []string{"linkedin"}},
	{"Microsoft", "🪟", []string{"microsoft", "outlook"}},
	{"Apple", "🍏", []string{"apple", "icloud"}},
	{"Spotify", "🎶", []string{"spotify"}},
	{"Zomato", "🍽️", []string{"zomato"}},
	{"Swiggy", "🍔", []string{"swiggy"}},
	{"Flipkart", "📦", []string{"flipkart"}},
	{"OnlyFans", "🔞", []string{"onlyfans"}},
	{"Tinder", "🔥", []string{"tinder"}},
	{"Bumble", "🐝", []string{"bumble"}},
}

type country struct {
	Name string
	Code string
}

var countries = []country{
	{"Afghanistan", "AF"}, {"Albania", "AL"}, {"Algeria", "DZ"}, {"Andorra", "AD"}, {"Angola", "AO"},
	{"Argentina", "AR"}, {"Armenia", "AM"}, {"Australia", "AU"}, {"Austria", "AT"}, {"Azerbaijan", "AZ"},
	{"Bahrain", "BH"}, {"Bangladesh", "BD"}, {"Belarus", "BY"}, {"Belgium", "BE"}, {"Benin", "BJ"},
	{"Bhutan", "BT"}, {"Bolivia", "BO"}, {"Brazil", "BR"}, {"Bulgaria", "BG"}, {"Burkina Faso", "BF"},
	{"Cambodia", "KH"}, {"Cameroon", "CM"}, {"Canada", "CA"}, {"Chad", "TD"}, {"Chile", "CL"},
	{"China", "CN"}, {"Colombia", "CO"}, {"Congo", "CG"}, {"Croatia", "HR"}, {"Cuba", "CU"},
	{"Cyprus", "CY"}, {"Czech Republic", "CZ"}, {"Denmark", "DK"}, {"Egypt", "EG"},
	{"Estonia", "EE"}, {"Ethiopia", "ET"}, {"Finland", "FI"}, {"France", "FR"},
	{"Germany", "DE"}, {"Ghana", "GH"}, {"Greece", "GR"}, {"Hong Kong", "HK"},
	{"Hungary", "HU"}, {"Iceland", "IS"}, {"India", "IN"}, {"Indonesia", "ID"},
	{"Iran", "IR"}, {"Iraq", "IQ"}, {"Ireland", "IE"}, {"Israel", "IL"},
	{"Italy", "IT"}, {"Japan", "JP"}, {"Kenya", "KE"}, {"Kuwait", "KW"},
	{"Malaysia", "MY"}, {"Mexico", "MX"}, {"Netherlands", "NL"}, {"Nigeria", "NG"},
	{"Norway", "NO"}, {"Pakistan", "PK"}, {"Philippines", "PH"}, {"Poland", "PL"},
	{"Portugal", "PT"}, {"Qatar", "QA"}, {"Romania", "RO"}, {"Russia", "RU"},
	{"Saudi Arabia", "SA"}, {"Singapore", "SG"}, {"South Africa", "ZA"},
	{"South Korea", "KR"}, {"Spain", "ES"}, {"Sri Lanka", "LK"},
	{"Sweden", "SE"}, {"Switzerland", "CH"}, {"Thailand", "TH"},
	{"Turkey", "TR"}, {"Ukraine", "UA"}, {"United Kingdom", "GB"},
	{"United States", "US"}, {"Vietnam", "VN"},
}
