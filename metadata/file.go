package metadata

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"encoding/json"

	"github.com/golang/glog"
	yaml "gopkg.in/yaml.v2"
)

// Dictionary dump file names, matching the exchange's published dumps.
const (
	vendorsFile             = "vendors.txt"
	gdnVendorsFile          = "gdn-vendors.txt"
	productCategoriesFile   = "ad-product-categories.txt"
	sensitiveCategoriesFile = "ad-sensitive-categories.txt"
	creativeAttributesFile  = "creative-attributes.txt"
	agenciesFile            = "agencies.txt"
	sellersFile             = "sellers.json"
)

// LoadDirectory assembles a Bundle from a directory of dictionary dumps.
// Every file is optional; missing ones leave their dictionary empty.
func LoadDirectory(dir string) (*Bundle, error) {
	if glog.V(2) {
		glog.Infof("Reading metadata dictionaries from %s", dir)
	}

	bundle := &Bundle{}

	if err := parseOptionalDictionary(filepath.Join(dir, vendorsFile), &bundle.Vendors); err != nil {
		return nil, err
	}
	if err := parseOptionalDictionary(filepath.Join(dir, productCategoriesFile), &bundle.ProductCategories); err != nil {
		return nil, err
	}
	if err := parseOptionalDictionary(filepath.Join(dir, sensitiveCategoriesFile), &bundle.SensitiveCategories); err != nil {
		return nil, err
	}
	if err := parseOptionalDictionary(filepath.Join(dir, creativeAttributesFile), &bundle.CreativeAttributes); err != nil {
		return nil, err
	}
	if err := parseOptionalDictionary(filepath.Join(dir, agenciesFile), &bundle.Agencies); err != nil {
		return nil, err
	}

	gdnFile, err := os.Open(filepath.Join(dir, gdnVendorsFile))
	if err == nil {
		bundle.GDNVendors, err = parseCodeList(gdnFile)
		gdnFile.Close()
		if err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	sellersBytes, err := ioutil.ReadFile(filepath.Join(dir, sellersFile))
	if err == nil {
		sellers := &Sellers{}
		if err := json.Unmarshal(sellersBytes, sellers); err != nil {
			return nil, err
		}
		bundle.Sellers = sellers
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	glog.Infof("Loaded metadata dictionaries from %s: %d vendors, %d product categories, %d sensitive categories",
		dir, len(bundle.Vendors), len(bundle.ProductCategories), len(bundle.SensitiveCategories))
	return bundle, nil
}

func parseOptionalDictionary(path string, dst *Dictionary) error {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	dict, err := parseDictionary(file)
	if err != nil {
		return err
	}
	*dst = dict
	return nil
}

// fileBundle is the yaml form of a locally managed bundle.
type fileBundle struct {
	Vendors             []fileEntry `yaml:"vendors"`
	GDNVendors          []int32     `yaml:"gdn_vendors"`
	ProductCategories   []fileEntry `yaml:"product_categories"`
	SensitiveCategories []fileEntry `yaml:"sensitive_categories"`
	CreativeAttributes  []fileEntry `yaml:"creative_attributes"`
	Agencies            []fileEntry `yaml:"agencies"`
	Sellers             *Sellers    `yaml:"sellers"`
}

type fileEntry struct {
	ID   int32  `yaml:"id"`
	Name string `yaml:"name"`
}

// LoadFile reads a single yaml bundle, the format used for small
// operator-managed dictionary sets.
func LoadFile(filename string) (*Bundle, error) {
	if glog.V(2) {
		glog.Infof("Reading metadata bundle from %s", filename)
	}

	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var parsed fileBundle
	if err := yaml.Unmarshal(b, &parsed); err != nil {
		return nil, err
	}

	bundle := &Bundle{
		Vendors:             entriesToDictionary(parsed.Vendors),
		GDNVendors:          parsed.GDNVendors,
		ProductCategories:   entriesToDictionary(parsed.ProductCategories),
		SensitiveCategories: entriesToDictionary(parsed.SensitiveCategories),
		CreativeAttributes:  entriesToDictionary(parsed.CreativeAttributes),
		Agencies:            entriesToDictionary(parsed.Agencies),
		Sellers:             parsed.Sellers,
	}
	glog.Infof("Loaded %d vendors", len(bundle.Vendors))
	return bundle, nil
}

func entriesToDictionary(entries []fileEntry) Dictionary {
	if len(entries) == 0 {
		return nil
	}
	dict := make(Dictionary, len(entries))
	for _, entry := range entries {
		dict[entry.ID] = entry.Name
	}
	return dict
}
