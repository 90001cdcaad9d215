package mcpserver

// DocumentFormatContract describes the documents the change feed reads.
// LLM consumers should follow it when writing into the store directly.
const DocumentFormatContract = `# aislemap Document Format

The store root holds one directory per collection. Every ` + "`" + `.yaml` + "`" + `, ` + "`" + `.yml` + "`" + ` or
` + "`" + `.json` + "`" + ` file in a collection directory is one record. The file stem is the record id.

## Markers/

` + "```" + `yaml
category: Dairy        # category the marker points at
color: blue            # colour token for the map pin
location:
  x: 120               # integer pixels from the left edge
  y: 48                # integer pixels from the top edge
` + "```" + `

Coordinates that are missing, negative or not numeric are read as 0. Numeric
strings are accepted ("40" and "40px" both read as 40).

## SelectedItems/

` + "```" + `yaml
name: Milk
category: Dairy
imageUrl: https://cdn.example.com/milk.png   # optional
` + "```" + `

Each file counts as one unit. Two files with the same name and category are
shown as one entry with quantity 2.

## Rules

1. Only items whose category is in the accepted set are shown.
2. Without show-all, the map shows the first marker (by id) of each selected category.
3. Removing an item deletes its file. Use the ` + "`" + `remove_selected_item` + "`" + ` tool rather than
   deleting files by hand so the view updates optimistically.
`
